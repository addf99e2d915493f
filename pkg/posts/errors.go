package posts

import "errors"

var (
	ErrInvalidTopic       = errors.New("invalid topic")
	ErrInvalidID          = errors.New("invalid post id")
	ErrIdentityResolution = errors.New("unable to load username")
	ErrQuotaExceeded      = errors.New("daily publish limit reached")
	ErrNotFound           = errors.New("post not found")
)
