package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"iblbake/libgpu"
	"iblbake/libio"
	"iblbake/libutil"
)

// writePreview tone maps every level of img to a png. The layers of a level
// are stacked vertically.
func writePreview(name string, img *libgpu.Image) error {
	if cargs.preview == "" {
		return nil
	}
	if err := img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc); err != nil {
		return err
	}
	defer img.TransitionLayout(libgpu.LayoutTransferSrc, libgpu.LayoutShaderRead)

	desc := img.Desc()
	for level := 0; level < desc.MipLevels; level++ {
		pix, err := img.DownloadFloats(libgpu.Region{Level: level, Layers: desc.Layers})
		if err != nil {
			return err
		}
		w, h := img.Extent(level)
		fimg := libio.NewFloatImage(pix, 4, w, h*desc.Layers).ToChannels(3)
		rgba := scalePreview(fimg.ToIntImage(float32(cargs.gamma), float32(cargs.scale)).ToRGBA(), desc.Layers)

		outFilename := filepath.Join(cargs.preview, fmt.Sprintf("%s_%d.png", name, level))
		if desc.MipLevels == 1 {
			outFilename = filepath.Join(cargs.preview, name+".png")
		}
		if !cargs.quiet {
			fmt.Printf("Writing %q ...\n", filepath.ToSlash(filepath.Clean(outFilename)))
		}
		if err := writePng(outFilename, rgba); err != nil {
			return err
		}
	}
	return nil
}

// scalePreview resizes the faces of rgba to cargs.previewSize wide.
func scalePreview(rgba *image.RGBA, layers int) *image.RGBA {
	w := rgba.Bounds().Dx()
	if cargs.previewSize <= 0 || w == cargs.previewSize {
		return rgba
	}
	faceHeight := rgba.Bounds().Dy() / layers * cargs.previewSize / w
	dst := image.NewRGBA(image.Rect(0, 0, cargs.previewSize, libutil.Max(faceHeight, 1)*layers))
	draw.CatmullRom.Scale(dst, dst.Bounds(), rgba, rgba.Bounds(), draw.Src, nil)
	return dst
}

func writePng(outFilename string, rgba *image.RGBA) error {
	outFile, err := os.OpenFile(outFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer close(outFile)
	return png.Encode(outFile, rgba)
}
