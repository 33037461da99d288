package observability

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

var scrubbedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
}

// scrubEvent drops bearer tokens and session cookies before they leave the process.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}
	for _, name := range scrubbedHeaders {
		delete(event.Request.Headers, name)
		delete(event.Request.Headers, http.CanonicalHeaderKey(name))
	}
	event.Request.Cookies = ""
	event.Request.Data = ""
	return event
}

func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
