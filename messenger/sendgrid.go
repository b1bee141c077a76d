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
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const DefaultSendGridHost = "https://api.sendgrid.com"

type SendGridConfig struct {
	APIKey      string
	Host        string
	FromName    string
	FromAddress string
	Timeout     time.Duration
}

// SendGrid delivers notifications as plain text e-mail
type SendGrid struct {
	cfg    SendGridConfig
	client *rest.Client
}

func NewSendGrid(cfg SendGridConfig) *SendGrid {
	if cfg.Host == "" {
		cfg.Host = DefaultSendGridHost
	}
	return &SendGrid{
		cfg:    cfg,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: cfg.Timeout}},
	}
}

func (sg *SendGrid) Send(ctx context.Context, to, subject, body string) error {
	subLog := log.With().Str("ToAddress", to).Str("Subject", subject).Logger()
	subLog.Info().Msg("sending notification e-mail")

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(sg.cfg.FromName, sg.cfg.FromAddress))
	m.Subject = subject
	m.AddContent(mail.NewContent("text/plain", body))

	person := mail.NewPersonalization()
	person.AddTos(mail.NewEmail("", to))
	m.AddPersonalizations(person)

	request := sendgrid.GetRequest(sg.cfg.APIKey, "/v3/mail/send", sg.cfg.Host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(m)

	response, err := sg.client.SendWithContext(ctx, request)
	if err != nil {
		subLog.Error().Err(err).Msg("could not send message")
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	if response.StatusCode >= 400 {
		subLog.Error().Int("StatusCode", response.StatusCode).Str("Body", response.Body).Msg("sendgrid rejected message")
		return fmt.Errorf("%w: sendgrid status %d", ErrSendFailed, response.StatusCode)
	}

	subLog.Info().Int("StatusCode", response.StatusCode).Strs("MessageID", response.Headers["X-Message-Id"]).Msg("sent notification email")
	return nil
}
