package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/config"
	"github.com/flowpbx/switchyard/internal/database/models"
)

// mockSMTPClient implements smtpClient for testing.
type mockSMTPClient struct {
	helloCalled bool
	tlsCalled   bool
	authCalled  bool
	mailFrom    string
	rcptTo      []string
	dataWritten []byte
	quitCalled  bool
	authErr     error
}

func (m *mockSMTPClient) Hello(_ string) error { m.helloCalled = true; return nil }
func (m *mockSMTPClient) Extension(ext string) (bool, string) {
	return ext == "STARTTLS", ""
}
func (m *mockSMTPClient) StartTLS(_ *tls.Config) error { m.tlsCalled = true; return nil }
func (m *mockSMTPClient) Auth(_ smtp.Auth) error {
	m.authCalled = true
	return m.authErr
}
func (m *mockSMTPClient) Mail(from string) error { m.mailFrom = from; return nil }
func (m *mockSMTPClient) Rcpt(to string) error {
	m.rcptTo = append(m.rcptTo, to)
	return nil
}
func (m *mockSMTPClient) Data() (io.WriteCloser, error) { return &mockWriteCloser{mock: m}, nil }
func (m *mockSMTPClient) Quit() error                   { m.quitCalled = true; return nil }
func (m *mockSMTPClient) Close() error                  { return nil }

type mockWriteCloser struct {
	mock *mockSMTPClient
}

func (w *mockWriteCloser) Write(p []byte) (int, error) {
	w.mock.dataWritten = append(w.mock.dataWritten, p...)
	return len(p), nil
}

func (w *mockWriteCloser) Close() error { return nil }

func newTestSender(cfg config.SMTP, mock *mockSMTPClient) *Sender {
	s := NewSender(cfg, slog.New(slog.DiscardHandler))
	s.dialFunc = func(_ string, _ *tls.Config, _ string) (smtpClient, error) {
		return mock, nil
	}
	s.now = func() time.Time { return time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC) }
	return s
}

var testSMTP = config.SMTP{
	Host:     "mail.example.com",
	Port:     587,
	From:     "pbx@example.com",
	Username: "user",
	Password: "pass",
	TLS:      "starttls",
}

func voicemailVars() map[string]string {
	return map[string]string{
		CallerIDName:           "John Doe",
		CallerIDNumber:         "+61400000000",
		VoicemailNameFormatted: "201@acme.example",
		MessageDate:            "2025-06-15 10:30",
		MessageDuration:        FormatDuration(45),
	}
}

func TestSendVoicemailLinkOnly(t *testing.T) {
	mock := &mockSMTPClient{}
	s := newTestSender(testSMTP, mock)

	err := s.SendVoicemail(context.Background(), VoicemailTemplates(), VoicemailNotice{
		To:     "alice@example.com, bob@example.com",
		Policy: models.AttachLink,
		Vars:   voicemailVars(),
		Link:   "https://pbx.example.com/voicemail/messages/1?token=abc",
	})
	require.NoError(t, err)

	assert.True(t, mock.helloCalled)
	assert.True(t, mock.tlsCalled)
	assert.True(t, mock.authCalled)
	assert.True(t, mock.quitCalled)
	assert.Equal(t, "pbx@example.com", mock.mailFrom)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, mock.rcptTo)

	body := string(mock.dataWritten)
	assert.Contains(t, body, "Subject: Voicemail from John Doe <+61400000000> 45s")
	assert.Contains(t, body, "201@acme.example")
	assert.Contains(t, body, "token=abc")
	assert.NotContains(t, body, "multipart/mixed")
}

func TestSendVoicemailAttachment(t *testing.T) {
	store := blob.NewLocal(t.TempDir())
	require.NoError(t, store.Save(context.Background(), "acme.example/201/msg_001.wav", strings.NewReader("RIFF-fake-wav-data")))

	mock := &mockSMTPClient{}
	s := newTestSender(config.SMTP{Host: "mail.example.com", From: "pbx@example.com", TLS: "none"}, mock)

	err := s.SendVoicemail(context.Background(), VoicemailTemplates(), VoicemailNotice{
		To:     "admin@example.com",
		Policy: models.AttachBoth,
		Vars:   voicemailVars(),
		Link:   "https://pbx.example.com/dl",
		Store:  store,
		File:   "acme.example/201/msg_001.wav",
	})
	require.NoError(t, err)

	body := string(mock.dataWritten)
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "audio/wav")
	assert.Contains(t, body, `filename="msg_001.wav"`)
	assert.Contains(t, body, "Content-Transfer-Encoding: base64")
	assert.Contains(t, body, "https://pbx.example.com/dl")
	assert.False(t, mock.authCalled, "no credentials, no auth")
	assert.False(t, mock.tlsCalled)
}

func TestSendVoicemailMissingAudio(t *testing.T) {
	s := newTestSender(testSMTP, &mockSMTPClient{})
	err := s.SendVoicemail(context.Background(), VoicemailTemplates(), VoicemailNotice{
		To:     "admin@example.com",
		Policy: models.AttachFile,
		Store:  blob.NewLocal(t.TempDir()),
		File:   "missing.wav",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, blob.ErrNotExist)
}

func TestSendVoicemailUnknownPlaceholder(t *testing.T) {
	mock := &mockSMTPClient{}
	s := newTestSender(testSMTP, mock)
	err := s.SendVoicemail(context.Background(),
		Templates{Subject: "Hi {caller_name}", Body: "x"},
		VoicemailNotice{To: "admin@example.com", Policy: models.AttachNone})
	assert.ErrorIs(t, err, ErrUnknownPlaceholder)
	assert.False(t, mock.helloCalled, "nothing is sent when rendering fails")
}

func TestSendMissedCall(t *testing.T) {
	mock := &mockSMTPClient{}
	s := newTestSender(testSMTP, mock)
	err := s.SendMissedCall(context.Background(), MissedCallTemplates(), "alice@example.com", map[string]string{
		CallerIDName:   "Bob",
		CallerIDNumber: "555",
		SIPToUser:      "201",
	})
	require.NoError(t, err)
	body := string(mock.dataWritten)
	assert.Contains(t, body, "Subject: Missed call from Bob <555>")
	assert.Contains(t, body, "You missed a call to 201")
}

func TestSendNotConfigured(t *testing.T) {
	s := newTestSender(config.SMTP{}, &mockSMTPClient{})
	err := s.Send(context.Background(), Message{To: "admin@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendNoRecipient(t *testing.T) {
	s := newTestSender(testSMTP, &mockSMTPClient{})
	err := s.Send(context.Background(), Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipient")
}

func TestSendAuthError(t *testing.T) {
	s := newTestSender(testSMTP, &mockSMTPClient{authErr: fmt.Errorf("invalid credentials")})
	err := s.Send(context.Background(), Message{To: "admin@example.com", Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp auth")
}

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		want    string
		wantErr bool
	}{
		{"plain", "hello", "hello", false},
		{"known", "from {caller_id_name}", "from Bob", false},
		{"missing value renders empty", "to {dialed_user}.", "to .", false},
		{"escaped braces", "{{literal}} {caller_id_number}", "{literal} 555", false},
		{"unknown", "{caller_name}", "", true},
		{"format verb", "{0}", "", true},
		{"unclosed", "from {caller_id_name", "", true},
	}
	vars := map[string]string{CallerIDName: "Bob", CallerIDNumber: "555"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Render(tc.tmpl, vars)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownPlaceholder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs     int
		expected string
	}{
		{0, "0s"},
		{5, "5s"},
		{59, "59s"},
		{60, "1m"},
		{61, "1m 1s"},
		{125, "2m 5s"},
		{3600, "60m"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, FormatDuration(tc.secs), "secs=%d", tc.secs)
	}
}
