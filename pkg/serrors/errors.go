package serrors

// BaseError is a coded error. Code is stable and machine-readable; LocaleKey
// is used by presentation layers that translate messages.
type BaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	LocaleKey string `json:"locale_key,omitempty"`
}

func (b *BaseError) Error() string {
	return b.Message
}

// Is matches any *BaseError carrying the same code, so wrapped copies still
// compare equal to the package-level sentinels.
func (b *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return t.Code == b.Code
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}
