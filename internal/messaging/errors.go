package messaging

import (
	"errors"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/database"
)

// translate maps storage sentinels onto the application taxonomy
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrConversationNotFound):
		return apperr.ErrConversationNotFound
	case errors.Is(err, database.ErrMessageNotFound):
		return apperr.ErrMessageNotFound
	case errors.Is(err, database.ErrUserNotFound):
		return apperr.ErrUserNotFound
	case errors.Is(err, database.ErrNotEditable):
		return apperr.ErrNotEditable
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err)
}
