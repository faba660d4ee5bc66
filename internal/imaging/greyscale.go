package imaging

import (
	"image"
	"image/color"
)

// Greyscale converts img to an 8-bit grey image using the ITU-R 601 luma
// weights of color.GrayModel. Alpha is discarded.
func Greyscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	grey := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			grey.SetGray(x, y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return grey
}
