package mail

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lebensspur/sentinel/internal/errkind"
	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/types"
)

// dialTimeout bounds SMTP connection setup, so a dead mail host never
// stalls the mail worker indefinitely.
const dialTimeout = 10 * time.Second

// connect establishes an authenticated SMTP client for cfg. Port 465 uses
// implicit TLS (SMTPS); any other port dials in the clear and upgrades
// via STARTTLS when the server offers it, matching how real SMTP
// providers split these two conventions.
func connect(cfg types.MailConfig) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var client *smtp.Client
	if cfg.Port == 465 {
		dialer := &net.Dialer{Timeout: dialTimeout}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
		if err != nil {
			return nil, errkind.Wrapf(errkind.NoNetwork, err, "dial smtps %s", addr)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			_ = conn.Close()
			return nil, errkind.Wrapf(errkind.SmtpTransient, err, "init smtp client")
		}
	} else {
		dialer := &net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, errkind.Wrapf(errkind.NoNetwork, err, "dial smtp %s", addr)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			_ = conn.Close()
			return nil, errkind.Wrapf(errkind.SmtpTransient, err, "init smtp client")
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				client.Close()
				return nil, errkind.Wrapf(errkind.SmtpTransient, err, "starttls")
			}
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, errkind.Wrapf(errkind.AuthRejected, err, "smtp auth")
		}
	}
	return client, nil
}

// Rendered is a fully composed message body, ready to hand to deliver.
type Rendered struct {
	Subject     string
	Body        string
	Recipients  []string
	Attachments []string
}

// deliver sends one rendered message using a freshly-dialed client,
// closing it afterward. A single device firing at most a handful of
// alerts per escalation has no use for a persistent connection pool —
// one short-lived connection per send is simpler and cannot leak a stale
// pooled connection across hours of idle countdown time.
func deliver(cfg types.MailConfig, msg Rendered, log logger.Logger) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Quit()
	}()
	return send(client, cfg, msg, log)
}

func send(client *smtp.Client, cfg types.MailConfig, msg Rendered, log logger.Logger) (err error) {
	from := strings.TrimSpace(cfg.Username)
	if from == "" {
		return errkind.New(errkind.ConfigInvalid, errors.New("smtp username/from is empty"))
	}
	if err := client.Mail(from); err != nil {
		return errkind.SMTP(smtpCode(err), errors.Wrap(err, "MAIL FROM"))
	}

	sent := false
	for _, to := range msg.Recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if err := client.Rcpt(to); err != nil {
			return errkind.SMTP(smtpCode(err), errors.Wrapf(err, "RCPT TO %s", to))
		}
		sent = true
	}
	if !sent {
		return errkind.New(errkind.ConfigInvalid, errors.New("no valid recipients"))
	}

	w, err := client.Data()
	if err != nil {
		return errkind.SMTP(smtpCode(err), errors.Wrap(err, "DATA"))
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close smtp data writer")
		}
	}()

	var buf bytes.Buffer
	sender := cfg.SenderName
	if sender == "" {
		sender = "Sentinel"
	}
	boundary := "mixed_" + strconv.FormatInt(int64(len(msg.Attachments))+int64(len(msg.Subject)), 10) + "_boundary"

	buf.WriteString("From: " + sender + " <" + from + ">\r\n")
	buf.WriteString("To: " + strings.Join(msg.Recipients, ", ") + "\r\n")
	buf.WriteString("Subject: " + msg.Subject + "\r\n")
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) > 0 {
		buf.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n\r\n")
		buf.WriteString("--" + boundary + "\r\n")
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(msg.Body + "\r\n")

		for _, path := range msg.Attachments {
			appendAttachment(&buf, boundary, path, log)
		}
		buf.WriteString("--" + boundary + "--\r\n")
	} else {
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(msg.Body)
	}

	_, err = w.Write(buf.Bytes())
	return err
}

// appendAttachment encodes path as a MIME part and appends it to buf. A
// missing or unreadable attachment is logged and skipped rather than
// failing the whole send: one bad path on a group's attachment list must
// not cost every recipient the alert. Encoding happens into a scratch
// buffer first so a failure partway through never leaves a truncated
// part in buf.
func appendAttachment(buf *bytes.Buffer, boundary, path string, log logger.Logger) {
	file, err := os.Open(path)
	if err != nil {
		log.Warnf("skipping unreadable attachment %s: %v", path, err)
		return
	}
	defer file.Close()

	var part bytes.Buffer
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = "application/octet-stream"
	}
	part.WriteString("--" + boundary + "\r\n")
	part.WriteString("Content-Type: " + mt + "\r\n")
	part.WriteString("Content-Disposition: attachment; filename=\"" + filepath.Base(path) + "\"\r\n")
	part.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	enc := base64.NewEncoder(base64.StdEncoding, &part)
	if _, err := io.Copy(enc, file); err != nil {
		log.Warnf("skipping unreadable attachment %s: %v", path, err)
		return
	}
	if err := enc.Close(); err != nil {
		log.Warnf("skipping unreadable attachment %s: %v", path, err)
		return
	}
	part.WriteString("\r\n")
	buf.Write(part.Bytes())
}

// smtpCode extracts a 3-digit SMTP reply code from an error's text, if
// present, used to decide transient vs. permanent classification.
func smtpCode(err error) int {
	if err == nil {
		return 0
	}
	s := err.Error()
	for i := 0; i+3 <= len(s); i++ {
		if s[i] >= '1' && s[i] <= '5' && isDigit(s[i+1]) && isDigit(s[i+2]) {
			code, convErr := strconv.Atoi(s[i : i+3])
			if convErr == nil {
				return code
			}
		}
	}
	return 0
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
