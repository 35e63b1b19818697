package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func tinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Render", func() {
	var (
		data        []byte
		contentType string
		out         []byte
		outType     string
		err         error
	)

	JustBeforeEach(func() {
		out, outType, err = Render(data, contentType)
	})

	When("the format is one browsers display", func() {
		BeforeEach(func() {
			data = []byte("jpeg bytes")
			contentType = " Image/JPEG "
		})

		It("passes the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
			Expect(outType).To(Equal("image/jpeg"))
		})
	})

	When("the content type has parameters", func() {
		BeforeEach(func() {
			data = []byte("png bytes")
			contentType = "image/png; charset=binary"
		})

		It("ignores them", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(outType).To(Equal("image/png"))
		})
	})

	When("the label is unknown but the bytes are an image", func() {
		BeforeEach(func() {
			data = tinyPNG()
			contentType = "application/octet-stream"
		})

		It("re-encodes it as PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(outType).To(Equal("image/png"))
			_, format, decodeErr := image.Decode(bytes.NewReader(out))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the image is an SVG document", func() {
		BeforeEach(func() {
			data = []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
			contentType = "image/svg+xml"
		})

		It("refuses to pass it through", func() {
			Expect(err).To(MatchError(ErrUnsupported))
			Expect(out).To(BeNil())
		})
	})

	When("the bytes are not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
			contentType = "text/plain"
		})

		It("returns ErrUnsupported", func() {
			Expect(err).To(MatchError(ErrUnsupported))
		})
	})

	When("HEIC data is corrupt", func() {
		BeforeEach(func() {
			data = []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")
			contentType = ""
		})

		It("returns a decoding error", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding HEIC/HEIF image")))
		})
	})

	When("PDF data is corrupt", func() {
		BeforeEach(func() {
			data = []byte("not a pdf")
			contentType = "application/pdf"
		})

		It("returns a conversion error", func() {
			Expect(err).To(MatchError(ContainSubstring("converting PDF to image")))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("recognises HEIC brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmif1"))).To(BeTrue())
	})

	It("rejects other data", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})
