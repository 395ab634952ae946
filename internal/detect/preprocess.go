package detect

import "image"

// preprocess converts a frame raster to the model's CHW float32 input:
// nearest-neighbour resize to size x size, then per-channel scaling to [0,1].
func preprocess(img image.Image, size int) []float32 {
	resized := resizeImage(img, size, size)
	bounds := resized.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			idx := y*w + x
			data[0*h*w+idx] = float32(r>>8) / 255.0
			data[1*h*w+idx] = float32(g>>8) / 255.0
			data[2*h*w+idx] = float32(b>>8) / 255.0
		}
	}
	return data
}

// preprocessCrop converts a track crop to the re-identification model's CHW
// float32 input, scaled to [-1, 1].
func preprocessCrop(img image.Image, targetW, targetH int) []float32 {
	resized := resizeImage(img, targetW, targetH)
	bounds := resized.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	data := make([]float32, 3*h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			idx := y*w + x
			data[0*h*w+idx] = (float32(r>>8) - 127.5) / 127.5
			data[1*h*w+idx] = (float32(g>>8) - 127.5) / 127.5
			data[2*h*w+idx] = (float32(b>>8) - 127.5) / 127.5
		}
	}
	return data
}

// resizeImage performs nearest-neighbour resize (fast, good enough for ML input).
func resizeImage(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}
