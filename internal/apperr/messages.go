package apperr

var (
	ErrConversationNotFound = NotFound("conversation not found")
	ErrMessageNotFound      = NotFound("message not found")
	ErrUserNotFound         = NotFound("user not found")
	ErrNotParticipant       = Forbidden("you are not a participant in this conversation")
	ErrNotSender            = Forbidden("only the sender can edit this message")
	ErrNotEditable          = InvalidOperation("only text messages can be edited")
	ErrMessageDeleted       = InvalidOperation("message has been deleted")
	ErrSelfConversation     = Validation("cannot start a conversation with yourself")
	ErrEmptyContent         = Validation("message content is required")
	ErrContentTooLong       = Validation("message content exceeds 4000 characters")
	ErrInvalidMessageType   = InvalidOperation("message type must be text, file or system")
	ErrFileFieldsRequired   = InvalidOperation("file messages require file_url, file_name and file_size")
	ErrReplyOutsideThread   = InvalidOperation("reply must reference a message in the same conversation")
	ErrInvalidStatus        = Validation("status must be online, away or offline")
	ErrInvalidCredentials   = AuthFailed("invalid credentials")
	ErrAccountInactive      = AuthFailed("account is inactive")
)
