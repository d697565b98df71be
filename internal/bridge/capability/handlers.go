package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/router"
)

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

func (h *handlers) token(ctx context.Context, _ json.RawMessage) (any, error) {
	token, err := h.deps.Credentials.Request(ctx)
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (h *handlers) scanQR(ctx context.Context, _ json.RawMessage) (any, error) {
	data, err := h.deps.Prompter.ScanQR(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan QR code: %w", err)
	}
	return data, nil
}

func (h *handlers) save(ctx context.Context, data json.RawMessage) (any, error) {
	var p savePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	key, err := required("key", p.Key)
	if err != nil {
		return nil, err
	}
	value, err := required("value", p.Value)
	if err != nil {
		return nil, err
	}

	if err := h.deps.Storage.Save(ctx, key, value); err != nil {
		return nil, err
	}
	return router.Void{}, nil
}

func (h *handlers) get(ctx context.Context, data json.RawMessage) (any, error) {
	var p getPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	key, err := required("key", p.Key)
	if err != nil {
		return nil, err
	}

	value, ok, err := h.deps.Storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return GetResult{}, nil
	}
	return GetResult{Value: &value}, nil
}

func (h *handlers) alert(ctx context.Context, data json.RawMessage) (any, error) {
	var p alertPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	title, err := required("title", p.Title)
	if err != nil {
		return nil, err
	}
	message, err := required("message", p.Message)
	if err != nil {
		return nil, err
	}

	alert := Alert{
		Title:      plainText(title),
		Message:    plainText(message),
		ButtonText: withDefault(plainText(p.ButtonText), "OK"),
	}
	if err := h.deps.Prompter.Alert(ctx, alert); err != nil {
		return nil, fmt.Errorf("show alert: %w", err)
	}
	return router.Void{}, nil
}

func (h *handlers) confirm(ctx context.Context, data json.RawMessage) (any, error) {
	var p confirmPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	title, err := required("title", p.Title)
	if err != nil {
		return nil, err
	}
	message, err := required("message", p.Message)
	if err != nil {
		return nil, err
	}

	confirmed, err := h.deps.Prompter.Confirm(ctx, Confirm{
		Title:       plainText(title),
		Message:     plainText(message),
		CancelText:  withDefault(plainText(p.CancelButtonText), "Cancel"),
		ConfirmText: withDefault(plainText(p.ConfirmButtonText), "OK"),
	})
	if err != nil {
		return nil, fmt.Errorf("show confirmation: %w", err)
	}
	if confirmed {
		return ConfirmOutcome, nil
	}
	return CancelOutcome, nil
}

func (h *handlers) download(ctx context.Context, data json.RawMessage) (any, error) {
	if !h.deps.Permissions.FileAccess {
		return nil, ErrPermissionDenied
	}

	var p downloadPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	name, err := required("fileName", p.FileName)
	if err != nil {
		return nil, err
	}
	body, err := required("data", p.Data)
	if err != nil {
		return nil, err
	}

	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return nil, fmt.Errorf("%w: fileName is not a file name", ErrInvalidPayload)
	}
	content, contentType, err := decodeFileData(body)
	if err != nil {
		return nil, err
	}

	saved, err := h.deps.Files.Download(ctx, h.deps.Namespace, Download{
		FileName:    name,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	h.logger.Info("file downloaded", zap.String("file", name), zap.String("path", saved), zap.Int("bytes", len(content)))
	return DownloadResult{FileName: name, Success: true}, nil
}

func (h *handlers) upload(ctx context.Context, _ json.RawMessage) (any, error) {
	if !h.deps.Permissions.FileAccess {
		return nil, ErrPermissionDenied
	}
	if err := h.deps.Files.Upload(ctx, h.deps.Namespace); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return UploadResult{Success: true}, nil
}

func withDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
