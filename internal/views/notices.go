package views

import (
	"errors"

	"github.com/ent0n29/amical/internal/chat"
	"github.com/ent0n29/amical/internal/store"
)

// User-facing notices. Failure details stay in the logs.
const (
	NoticeLoadFailed   = "Impossible de charger votre ami."
	NoticeSendFailed   = "Impossible d'envoyer le message."
	NoticeCreateFailed = "Impossible de créer votre ami IA."
	NoticeBusy         = "Un message est déjà en cours d'envoi."
	NoticeEmpty        = "Le message est vide."
	NoticeStreamLost   = "La connexion en direct a été interrompue."
)

// SendNotice picks the notice shown when a send fails.
func SendNotice(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return NoticeBusy
	case errors.Is(err, chat.ErrEmptyMessage):
		return NoticeEmpty
	case errors.Is(err, store.ErrNotFound):
		return NoticeLoadFailed
	default:
		return NoticeSendFailed
	}
}
