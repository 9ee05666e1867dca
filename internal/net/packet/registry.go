package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// HandlerFunc decodes one message whose discriminator it was registered for.
type HandlerFunc[T any] func(r *Reader) (T, error)

type handlerEntry[T any] struct {
	fn         HandlerFunc[T]
	logPayload bool
}

// Registry maps `type` discriminators to decoders. Messages with an
// unregistered discriminator go to the fallback.
type Registry[T any] struct {
	handlers map[string]*handlerEntry[T]
	fallback HandlerFunc[T]
	log      *zap.Logger
}

func NewRegistry[T any](fallback HandlerFunc[T], log *zap.Logger) *Registry[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry[T]{
		handlers: make(map[string]*handlerEntry[T]),
		fallback: fallback,
		log:      log,
	}
}

// Register maps msgType to fn. When logPayload is set the raw text of every
// matching message is written at debug level before decoding.
func (reg *Registry[T]) Register(msgType string, logPayload bool, fn HandlerFunc[T]) {
	reg.handlers[msgType] = &handlerEntry[T]{fn: fn, logPayload: logPayload}
}

// Dispatch decodes r with the handler for its discriminator.
func (reg *Registry[T]) Dispatch(r *Reader) (T, error) {
	msgType := r.Type()
	entry, ok := reg.handlers[msgType]
	if !ok {
		reg.log.Debug("未註冊的訊息類型", zap.String("type", msgType))
		return reg.safeCall(reg.fallback, r, msgType)
	}
	if entry.logPayload {
		reg.log.Debug("收到訊息", zap.String("type", msgType), zap.String("raw", r.Raw()))
	}
	return reg.safeCall(entry.fn, r, msgType)
}

// safeCall executes a decoder with panic recovery so one malformed message
// cannot take down the receive loop.
func (reg *Registry[T]) safeCall(fn HandlerFunc[T], r *Reader, msgType string) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("解碼器 panic 已恢復",
				zap.String("type", msgType),
				zap.Any("panic", rec),
			)
			var zero T
			v, err = zero, fmt.Errorf("decoder panic for type %q: %v", msgType, rec)
		}
	}()
	return fn(r)
}
