package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/treasurehunt/internal/chat"
)

// handleChatAction runs an action relayed by the chat bot. The caller is
// the chat user named in the relay's identity token.
func handleChatAction(relay *chat.Relay, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var a chat.Action
		if err := readJSON(r, &a); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		reply, err := relay.Do(r.Context(), callerFrom(r), a)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}
