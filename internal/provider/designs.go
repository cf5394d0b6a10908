package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
)

type designResponse struct {
	Design struct {
		ID ID `json:"id"`
	} `json:"design"`
}

// UploadDesign registers artwork in the provider's design library and
// returns the asset id. Remote URLs go through the JSON endpoint; inline
// encoded payloads are decoded and posted as multipart. Failures are
// classified as upload errors so the resolver can degrade to a plain
// product instead of aborting the order.
func (c *Client) UploadDesign(ctx context.Context, imageData, name string) (string, error) {
	imageData = strings.TrimSpace(imageData)
	if imageData == "" {
		return "", NewError(KindUpload, 0, "image data is empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "design"
	}

	if strings.HasPrefix(imageData, "http://") || strings.HasPrefix(imageData, "https://") {
		return c.uploadDesignURL(ctx, imageData, name)
	}
	return c.uploadDesignInline(ctx, imageData, name)
}

func (c *Client) uploadDesignURL(ctx context.Context, url, name string) (string, error) {
	body := map[string]string{
		"url":  url,
		"name": name,
	}

	var resp designResponse
	if err := c.doJSON(ctx, http.MethodPost, "/designs/url", body, true, &resp); err != nil {
		return "", reclassifyUpload(err)
	}
	return designID(resp)
}

func (c *Client) uploadDesignInline(ctx context.Context, imageData, name string) (string, error) {
	payload, extension, err := decodeInlineImage(imageData)
	if err != nil {
		return "", WrapError(KindUpload, "decode inline image", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := fmt.Sprintf("%s.%s", name, extension)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", WrapError(KindUpload, "build multipart body", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", WrapError(KindUpload, "build multipart body", err)
	}
	if err := writer.WriteField("name", name); err != nil {
		return "", WrapError(KindUpload, "build multipart body", err)
	}
	if err := writer.Close(); err != nil {
		return "", WrapError(KindUpload, "build multipart body", err)
	}

	var resp designResponse
	if err := c.do(ctx, http.MethodPost, "/designs", writer.FormDataContentType(), &buf, true, &resp); err != nil {
		return "", reclassifyUpload(err)
	}
	return designID(resp)
}

func designID(resp designResponse) (string, error) {
	id := strings.TrimSpace(string(resp.Design.ID))
	if id == "" {
		return "", NewError(KindUpload, 0, "design endpoint returned no asset id")
	}
	return id, nil
}

// reclassifyUpload keeps auth failures fatal while folding everything else
// into the recoverable upload classification.
func reclassifyUpload(err error) error {
	if IsAuth(err) {
		return err
	}
	var pe *Error
	if errors.As(err, &pe) {
		return &Error{Kind: KindUpload, StatusCode: pe.StatusCode, Message: pe.Message, Fields: pe.Fields, err: pe.err}
	}
	return WrapError(KindUpload, "design upload failed", err)
}

// decodeInlineImage accepts either a data URI or a bare base64 string and
// returns the binary payload with an inferred file extension.
func decodeInlineImage(imageData string) ([]byte, string, error) {
	extension := "png"
	encoded := imageData

	if strings.HasPrefix(imageData, "data:") {
		separator := strings.Index(imageData, ",")
		if separator < 0 {
			return nil, "", fmt.Errorf("data uri missing payload separator")
		}
		header := imageData[len("data:"):separator]
		encoded = imageData[separator+1:]
		extension = extensionFromMime(strings.Split(header, ";")[0])
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		payload, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, "", fmt.Errorf("decoded image payload is empty")
	}
	return payload, extension, nil
}

func extensionFromMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	default:
		return "png"
	}
}
