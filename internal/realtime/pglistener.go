package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ent0n29/amical/internal/reliability"
	"github.com/ent0n29/amical/internal/store"
)

// TurnLoader resolves a notified turn id into the committed row.
type TurnLoader interface {
	GetTurn(ctx context.Context, id string) (store.Turn, error)
}

// PGListener relays PostgreSQL turn-insert notifications into a Hub.
// NOTIFY delivery follows commit order, and notifications are resolved
// sequentially, so the hub sees turns in the order the store committed them.
type PGListener struct {
	databaseURL string
	channel     string
	loader      TurnLoader
	hub         *Hub
}

func NewPGListener(databaseURL string, loader TurnLoader, hub *Hub) *PGListener {
	return &PGListener{
		databaseURL: databaseURL,
		channel:     store.TurnNotifyChannel,
		loader:      loader,
		hub:         hub,
	}
}

type turnNotification struct {
	ID        string `json:"id"`
	PersonaID string `json:"persona_id"`
}

// Run blocks until ctx is done, reconnecting with capped backoff.
func (l *PGListener) Run(ctx context.Context) {
	attempt := 0
	for {
		err := l.listen(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return
		}
		delay := reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 10*time.Second)
		attempt++
		log.Printf("realtime listener disconnected: %v (reconnecting in %s)", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (l *PGListener) listen(ctx context.Context, onConnected func()) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	onConnected()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		if err := l.dispatch(ctx, []byte(n.Payload)); err != nil {
			log.Printf("realtime listener dropped notification: %v", err)
		}
	}
}

func (l *PGListener) dispatch(ctx context.Context, payload []byte) error {
	var note turnNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if note.ID == "" {
		return errors.New("notification without turn id")
	}
	// Nobody is watching this persona; skip the round trip.
	if note.PersonaID != "" && l.hub.Subscribers(note.PersonaID) == 0 {
		return nil
	}
	turn, err := l.loader.GetTurn(ctx, note.ID)
	if err != nil {
		return fmt.Errorf("load turn %s: %w", note.ID, err)
	}
	l.hub.Publish(turn)
	return nil
}
