package telegram

import (
	"strings"
	"time"

	"log/slog"

	coreconfig "github.com/m3rciful/menukit/core/config"
	"github.com/m3rciful/menukit/core/logger"
	tghelpers "github.com/m3rciful/menukit/core/telegram/helpers"
	"github.com/m3rciful/menukit/core/telegram/middleware"
	"github.com/m3rciful/menukit/menu/machine"

	tele "gopkg.in/telebot.v4"
)

// BuildRoutes wires the menu machine and registered commands into bot routes:
// callbacks, text, documents and photos flow into the machine, commands run
// their handlers or open their menu.
func BuildRoutes(cfg *coreconfig.Config, reg *Registry, m *machine.Machine) []Route {
	routes := []Route{
		{Endpoint: tele.OnCallback, Handler: callbackHandler(m)},
		{Endpoint: tele.OnText, Handler: textHandler(reg, m)},
		{Endpoint: tele.OnDocument, Handler: documentHandler(m)},
		{Endpoint: tele.OnPhoto, Handler: photoHandler(m)},
	}

	adminOpts := middleware.AdminOptions{}
	if cfg != nil {
		adminOpts.AdminID = cfg.Telegram.AdminID
	}
	for name, cmd := range reg.Commands() {
		handler := cmd.Handler
		if handler == nil && cmd.Menu != "" {
			handler = openMenuHandler(m, cmd.Menu)
		}
		if handler == nil {
			continue
		}
		wrapped := middleware.WithAdminCheck(adminOpts, struct {
			AdminOnly bool
			Handler   tele.HandlerFunc
		}{AdminOnly: cmd.AdminOnly, Handler: handler})
		routes = append(routes, Route{
			Endpoint: name,
			Handler:  commandHandler(name, wrapped),
		})
	}
	return routes
}

func commandHandler(name string, handler tele.HandlerFunc) tele.HandlerFunc {
	handlerName := "cmd_" + normalizeHandlerName(name)
	return func(c tele.Context) error {
		return handleWithSummary(c, handlerName, time.Now(), func() error {
			return handler(c)
		})
	}
}

// openMenuHandler synthesizes a command handler that opens a menu.
func openMenuHandler(m *machine.Machine, menuID string) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		return m.Open(ctx, chat.ID, menuID)
	}
}

func callbackHandler(m *machine.Machine) tele.HandlerFunc {
	return func(c tele.Context) error {
		cb := c.Callback()
		chat := c.Chat()
		if cb == nil || chat == nil {
			return nil
		}
		return handleWithSummary(c, "menu_callback", time.Now(), func() error {
			ctx := tghelpers.BuildContext(c)
			ack, err := m.HandleCallback(ctx, chat.ID, strings.TrimPrefix(cb.Data, "\f"))
			if err != nil {
				// Acknowledge anyway so the button stops spinning.
				_ = c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
				return err
			}
			return c.Respond(&tele.CallbackResponse{Text: ack})
		})
	}
}

func textHandler(reg *Registry, m *machine.Machine) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return nil
		}
		return handleWithSummary(c, "menu_text", time.Now(), func() error {
			ctx := tghelpers.BuildContext(c)
			handled, err := m.HandleText(ctx, chat.ID, c.Text())
			if err != nil {
				return err
			}
			if handled {
				return nil
			}
			if fallback := reg.TextFallback(); fallback != nil {
				return fallback(c)
			}
			return nil
		})
	}
}

func documentHandler(m *machine.Machine) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		msg := c.Message()
		if chat == nil || msg == nil || msg.Document == nil {
			return nil
		}
		doc := msg.Document
		return handleWithSummary(c, "menu_document", time.Now(), func() error {
			ctx := tghelpers.BuildContext(c)
			_, err := m.HandleUpload(ctx, chat.ID, machine.UploadInput{
				FileID:   doc.FileID,
				MIME:     doc.MIME,
				FileName: doc.FileName,
				Size:     doc.FileSize,
			})
			return err
		})
	}
}

func photoHandler(m *machine.Machine) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		msg := c.Message()
		if chat == nil || msg == nil || msg.Photo == nil {
			return nil
		}
		photo := msg.Photo
		return handleWithSummary(c, "menu_photo", time.Now(), func() error {
			ctx := tghelpers.BuildContext(c)
			_, err := m.HandleUpload(ctx, chat.ID, machine.UploadInput{
				FileID:   photo.FileID,
				MIME:     "image/jpeg",
				FileName: "photo.jpg",
				Size:     photo.FileSize,
			})
			return err
		})
	}
}

func handleWithSummary(c tele.Context, handlerName string, start time.Time, fn func() error, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, handlerName)
	err := fn()
	logHandlerSummary(c, handlerName, start, err, extras...)
	return err
}

func logHandlerSummary(c tele.Context, handlerName string, start time.Time, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, handlerName)
	msgs, kb := middleware.GetCounters(c)

	status := "ok"
	if err != nil {
		status = "fail"
	}

	duration := logger.RoundMS(time.Since(start)).Milliseconds()
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", duration),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("cause", handlerName),
		)
	}
	if len(extras) > 0 {
		attrs = append(attrs, extras...)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}
