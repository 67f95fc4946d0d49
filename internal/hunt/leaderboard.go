package hunt

import "sort"

type Standing struct {
	Rank      int    `json:"rank"`
	TeamID    string `json:"teamId"`
	Name      string `json:"name"`
	Pot       int64  `json:"pot"`
	Completed int    `json:"completed"`
}

// Rank orders teams by pot, then completed nodes, then name. Teams with the
// same pot and completion count share a rank.
func Rank(teams []Team) []Standing {
	out := make([]Standing, 0, len(teams))
	for _, t := range teams {
		out = append(out, Standing{TeamID: t.ID, Name: t.Name, Pot: t.Pot, Completed: len(t.Completed)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pot != out[j].Pot {
			return out[i].Pot > out[j].Pot
		}
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		if i > 0 && out[i].Pot == out[i-1].Pot && out[i].Completed == out[i-1].Completed {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}
