// Package equalize applies histogram equalization to the luma channel of
// colour images using OpenCV.
package equalize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"go-equalize/pkg/common"
)

// ColorEqualizeHist equalizes the Y channel of a BGR image in YCrCb space and
// converts the result back to BGR. Cr and Cb are left untouched. The caller
// owns both src and the returned Mat, which is unusable when err is non-nil.
func ColorEqualizeHist(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.Mat{}, errors.New("equalize: empty image")
	}
	if src.Type() != gocv.MatTypeCV8UC3 {
		return gocv.Mat{}, fmt.Errorf("equalize: expected 8-bit 3-channel image, got %v", src.Type())
	}

	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	if err := gocv.CvtColor(src, &ycrcb, gocv.ColorBGRToYCrCb); err != nil {
		return gocv.Mat{}, fmt.Errorf("equalize: convert to YCrCb: %w", err)
	}

	channels := gocv.Split(ycrcb)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	if len(channels) != 3 {
		return gocv.Mat{}, fmt.Errorf("equalize: split produced %d channels", len(channels))
	}
	if err := gocv.EqualizeHist(channels[0], &channels[0]); err != nil {
		return gocv.Mat{}, fmt.Errorf("equalize: equalize luma: %w", err)
	}

	merged := gocv.NewMat()
	defer merged.Close()
	if err := gocv.Merge(channels, &merged); err != nil {
		return gocv.Mat{}, fmt.Errorf("equalize: merge channels: %w", err)
	}

	out := gocv.NewMat()
	if err := gocv.CvtColor(merged, &out, gocv.ColorYCrCbToBGR); err != nil {
		out.Close()
		return gocv.Mat{}, fmt.Errorf("equalize: convert to BGR: %w", err)
	}
	if out.Empty() || out.Rows() != src.Rows() || out.Cols() != src.Cols() || out.Type() != src.Type() {
		out.Close()
		return gocv.Mat{}, errors.New("equalize: conversion produced a mismatched image")
	}
	return out, nil
}

// Decode reads data as a 3-channel colour image. Anything OpenCV cannot
// decode is reported as common.ErrNotImage, and the returned Mat must then
// not be used.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, common.ErrNotImage
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", common.ErrNotImage, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, common.ErrNotImage
	}
	return img, nil
}

// Encode writes img in the format implied by the extension of name.
func Encode(name string, img gocv.Mat) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return nil, fmt.Errorf("encode %s: no file extension to select a format", name)
	}
	buf, err := gocv.IMEncode(gocv.FileExt(ext), img)
	if err != nil {
		if buf != nil {
			buf.Close()
		}
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close releases.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Transformer runs decode, equalize and encode over raw file contents.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

func (t *Transformer) Transform(name string, data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	equalized, err := ColorEqualizeHist(img)
	if err != nil {
		return nil, err
	}
	defer equalized.Close()

	return Encode(name, equalized)
}
