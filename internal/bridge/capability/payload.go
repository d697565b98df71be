package capability

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/microcosm-cc/bluemonday"
)

type savePayload struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

type getPayload struct {
	Key *string `json:"key"`
}

type alertPayload struct {
	Title      *string `json:"title"`
	Message    *string `json:"message"`
	ButtonText string  `json:"buttonText"`
}

type confirmPayload struct {
	Title             *string `json:"title"`
	Message           *string `json:"message"`
	CancelButtonText  string  `json:"cancelButtonText"`
	ConfirmButtonText string  `json:"confirmButtonText"`
}

type downloadPayload struct {
	FileName *string `json:"fileName"`
	Data     *string `json:"data"`
}

// GetResult is the argument of resolveGetLocalData; Value is null when the
// key is absent.
type GetResult struct {
	Value *string `json:"value"`
}

// DownloadResult is the argument of resolveDownload.
type DownloadResult struct {
	FileName string `json:"fileName"`
	Success  bool   `json:"success"`
}

// UploadResult is the argument of resolveUpload.
type UploadResult struct {
	Success bool `json:"success"`
}

const (
	ConfirmOutcome = "confirm"
	CancelOutcome  = "cancel"
)

func decode(data json.RawMessage, into any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: data is required", ErrInvalidPayload)
	}
	if err := sonic.Unmarshal(trimmed, into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func required(field string, v *string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidPayload, field)
	}
	return *v, nil
}

var textPolicy = bluemonday.StrictPolicy()

// plainText strips markup from text shown in native dialogs.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// decodeFileData accepts plain text or a data: URL.
func decodeFileData(data string) ([]byte, string, error) {
	if !strings.HasPrefix(data, "data:") {
		return []byte(data), "", nil
	}

	meta, body, ok := strings.Cut(strings.TrimPrefix(data, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data URL", ErrInvalidPayload)
	}

	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, "", fmt.Errorf("%w: data URL is not valid base64", ErrInvalidPayload)
		}
		return decoded, contentType, nil
	}

	decoded, err := url.PathUnescape(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: malformed data URL", ErrInvalidPayload)
	}
	return []byte(decoded), contentType, nil
}
