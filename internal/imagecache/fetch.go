package imagecache

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // register decoders for the formats card hosts serve
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
)

// jpegQuality balances thumbnail fidelity against persistent-tier size.
const jpegQuality = 85

// maxImageBytes bounds a single download; card art is small.
const maxImageBytes = 8 << 20

// fetchImage downloads and decodes a source image.
func (c *Cache) fetchImage(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// downscale draws src onto a surface of the target size with contain-style
// aspect preservation, centered.
func downscale(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 || width <= 0 || height <= 0 {
		return src
	}

	scale := float64(width) / float64(srcW)
	if s := float64(height) / float64(srcH); s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}
	dstW := int(float64(srcW) * scale)
	dstH := int(float64(srcH) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// encodeDataURL re-encodes a bitmap as a JPEG data URL for the
// persistent tier.
func encodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decodeDataURL re-decodes a persistent-tier data URL.
func decodeDataURL(dataURL string) (image.Image, error) {
	idx := strings.Index(dataURL, ",")
	if idx < 0 || !strings.HasPrefix(dataURL, "data:") {
		return nil, fmt.Errorf("malformed data url")
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode cached image: %w", err)
	}
	return img, nil
}
