package notify

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

// ErrNoDestination is returned by notifiers that need a chat id when the
// message carries none.
var ErrNoDestination = errors.New("no destination")

// Message is one alert. Text may use Markdown emphasis.
type Message struct {
	ChatID string
	Title  string
	Text   string
}

type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// Multi fans a message out to every notifier and combines their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, msg))
	}
	return err
}
