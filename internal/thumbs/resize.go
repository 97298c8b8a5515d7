// Package thumbs — конвейер миниатюр: генерация размерных вариантов
// изображений и пул фоновых воркеров, потребляющих очередь заданий.
package thumbs

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	// Регистрация декодеров поддерживаемых форматов
	_ "image/gif"

	"golang.org/x/image/draw"
)

// Widths — фиксированные ширины размерных вариантов.
var Widths = []int{500, 250, 100}

// Resize декодирует исходное изображение и возвращает вариант
// заданной ширины с сохранением пропорций. PNG кодируется обратно
// в PNG, остальные форматы — в JPEG.
func Resize(original []byte, width int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("декодирование изображения: %w", err)
	}

	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("пустое изображение %dx%d", srcW, srcH)
	}

	// Уменьшение без увеличения: исходник уже изображения нужной
	// ширины отдаётся перекодированным, но не растянутым.
	dstW := width
	if dstW > srcW {
		dstW = srcW
	}
	dstH := srcH * dstW / srcW
	if dstH == 0 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, fmt.Errorf("кодирование варианта %d: %w", width, err)
	}

	return buf.Bytes(), nil
}
