package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the log level audit entries are written at. Audit entries are
// operational records, not diagnostics: they are emitted regardless of the
// logger's diagnostic verbosity.
const Level = zerolog.InfoLevel

// Message is the log message identifying an audit entry.
const Message = "audit"

// Entry accumulates the auditable details of one request as it moves
// through the handlers. Handlers fill in the content fields they know
// about; the middleware owns the request fields and writes the entry when
// the request completes.
type Entry struct {
	// request
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string

	// content served
	ContentURL   string
	Locale       string
	Refresh      bool
	SignatureOK  bool
	StagesFailed []string

	Error string
}

// MarshalZerologObject serializes the entry as nested dictionaries,
// omitting the content dictionary entirely when no handler recorded
// anything.
func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	request := zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent)
	ev.Dict("request", request)

	content := NewOptionalEvent(nil).
		Str("url", e.ContentURL).
		Str("locale", e.Locale).
		Strs("stagesFailed", e.StagesFailed)
	if e.Refresh {
		content.Bool("refresh", true)
	}
	if e.SignatureOK {
		content.Bool("signatureOK", true)
	}
	content.Set(ev, "content")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

// Begin captures the request details into the entry. Status defaults to OK
// and is corrected by the middleware's response writer.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.Status = http.StatusOK
	e.UserAgent = r.UserAgent()

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		e.SourceIP = host
	} else {
		e.SourceIP = r.RemoteAddr
	}
}

// End returns the function that writes the completed entry. Deferred by the
// middleware so the entry is written however the handler exits.
func (e *Entry) End(ctx context.Context) func() {
	start := time.Now()
	return func() {
		log.Ctx(ctx).WithLevel(Level).
			EmbedObject(e).
			Dur("elapsed", time.Since(start)).
			Msg(Message)
	}
}

type entryKey struct{}

// Context returns a context carrying an audit entry, creating one when the
// context has none. The same entry is returned for the life of the request.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(entryKey{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, entryKey{}, e), e
}

// Log returns the context's audit entry for handlers to annotate. A context
// without an entry gets a detached one, keeping callers nil-safe.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Middleware audits every request: an entry is created before the handler
// runs and written when it completes, panics included. A panicking handler
// has the panic recorded on the entry before the panic resumes.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)

			end := entry.End(ctx)
			defer func() {
				if p := recover(); p != nil {
					if entry.Error != "" {
						entry.Error += "; "
					}
					entry.Error += fmt.Sprintf("panic: %v", p)
					end()
					panic(p)
				}
				end()
			}()

			sw := &statusWriter{ResponseWriter: w, entry: entry}
			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

// statusWriter records the response status onto the audit entry.
type statusWriter struct {
	http.ResponseWriter
	entry *Entry
}

func (w *statusWriter) WriteHeader(status int) {
	w.entry.Status = status
	w.ResponseWriter.WriteHeader(status)
}
