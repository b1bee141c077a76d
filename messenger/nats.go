// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package messenger

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

// Publisher is the part of a JetStream context used to publish alerts
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ConnectNats connects to the nats server and opens a JetStream context
func ConnectNats(url, credentialsFile string) (*nats.Conn, nats.JetStreamContext, error) {
	log.Info().Str("NATSServer", url).Str("Credentials", credentialsFile).Msg("connecting to NATS server")

	opts := []nats.Option{}
	if credentialsFile != "" {
		opts = append(opts, nats.UserCredentials(credentialsFile))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		log.Error().Err(err).Msg("could not connect to NATS server")
		return nil, nil, err
	}

	js, err := conn.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		log.Error().Err(err).Msg("could not create jetstream context")
		conn.Close()
		return nil, nil, err
	}

	return conn, js, nil
}

// Alert is the event published for every notification
type Alert struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

// Nats publishes notifications to a JetStream subject for downstream delivery
type Nats struct {
	js      Publisher
	subject string
	now     func() time.Time
}

func NewNats(js Publisher, subject string) *Nats {
	return &Nats{
		js:      js,
		subject: subject,
		now:     time.Now,
	}
}

func (n *Nats) Send(ctx context.Context, to, subject, body string) error {
	now := n.now()
	msgID, err := MessageID(to, subject, body, now)
	if err != nil {
		return err
	}

	alert := Alert{
		To:      to,
		Subject: subject,
		Body:    body,
		SentAt:  now.Format(time.RFC3339),
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		log.Error().Err(err).Msg("could not serialize alert to JSON")
		return err
	}

	if _, err := n.js.Publish(n.subject, payload, nats.MsgId(msgID), nats.Context(ctx)); err != nil {
		log.Error().Err(err).Str("Subject", n.subject).Str("MsgID", msgID).Msg("could not publish alert")
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	log.Info().Str("Subject", n.subject).Str("MsgID", msgID).Str("To", to).Msg("published alert")
	return nil
}

// MessageID identifies an alert for JetStream de-duplication. The same alert sent to
// the same address on the same day yields the same id.
func MessageID(to, subject, body string, sentAt time.Time) (string, error) {
	h := blake3.New()

	parts := []string{sentAt.UTC().Format("2006-01-02"), to, subject, body}
	for _, part := range parts {
		if _, err := h.Write([]byte(part)); err != nil {
			log.Error().Stack().Err(err).Msg("could not write to blake3 hasher")
			return "", err
		}
		// NUL separated
		if _, err := h.Write([]byte{0}); err != nil {
			return "", err
		}
	}

	digest := h.Digest()
	buf := make([]byte, 16)
	n, err := digest.Read(buf)
	if err != nil {
		return "", err
	}
	if n != 16 {
		return "", ErrGenerateHash
	}

	return hex.EncodeToString(buf), nil
}
