// pkg/wsfeed/errors.go
package wsfeed

import "errors"

var (
	// ErrNotConnected возвращается из Send, когда соединение не открыто.
	ErrNotConnected = errors.New("wsfeed: not connected")

	// ErrRetriesExhausted — терминальный исход: лимит реконнектов
	// исчерпан без успешного открытия.
	ErrRetriesExhausted = errors.New("wsfeed: reconnect attempts exhausted")

	// ErrAlreadyStarted возвращается из повторного Start.
	ErrAlreadyStarted = errors.New("wsfeed: already started")

	// ErrClosed возвращается из Start после Close.
	ErrClosed = errors.New("wsfeed: feed closed")
)
