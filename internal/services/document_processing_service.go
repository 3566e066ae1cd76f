package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
	pdf "github.com/dslipak/pdf"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"easyform/internal/log"
	"easyform/internal/models"
)

const (
	maxImageDimension = 1024
)

// UnsupportedFormatError signals a content type the processor cannot handle.
type UnsupportedFormatError struct {
	ContentType string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported format: " + e.ContentType
}

// IsUnsupportedFormat reports whether err is an UnsupportedFormatError.
func IsUnsupportedFormat(err error) bool {
	_, ok := err.(*UnsupportedFormatError)
	return ok
}

// ProcessedDocument is the output of processing one file.
type ProcessedDocument struct {
	Chunks    []*models.DocumentChunk
	PageCount int
}

// DocumentProcessor turns an uploaded file into an ordered chunk list. PDFs
// yield per-page text chunks plus IMAGE chunks for embedded pictures;
// standalone images yield a single IMAGE chunk.
type DocumentProcessor struct {
	chunker *Chunker
	ocr     OCRProvider
	logger  *slog.Logger
}

// NewDocumentProcessor creates a document processor. ocr may be nil; captions
// are then empty.
func NewDocumentProcessor(chunker *Chunker, ocr OCRProvider) *DocumentProcessor {
	return &DocumentProcessor{
		chunker: chunker,
		ocr:     ocr,
		logger:  log.WithModule("document_processor"),
	}
}

// Process converts a file into chunks. Chunk ordinals are monotone across
// the whole file.
func (p *DocumentProcessor) Process(ctx context.Context, file *models.File, data []byte) (*ProcessedDocument, error) {
	switch {
	case file.ContentType == "application/pdf":
		return p.processPDF(ctx, file, data)
	case models.IsImageContentType(file.ContentType):
		return p.processImage(ctx, file, data)
	default:
		return nil, &UnsupportedFormatError{ContentType: file.ContentType}
	}
}

func (p *DocumentProcessor) processPDF(ctx context.Context, file *models.File, data []byte) (*ProcessedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := reader.NumPage()
	doc := &ProcessedDocument{PageCount: totalPages}
	ordinal := 0

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("failed to extract page text", "file_id", file.ID, "page", pageNum, "error", err)
			text = ""
		}

		for chunkInPage, chunkText := range p.chunker.Split(text) {
			doc.Chunks = append(doc.Chunks, &models.DocumentChunk{
				ID:         uuid.New().String(),
				FileID:     file.ID,
				UserID:     file.UserID,
				ChunkIndex: ordinal,
				ChunkType:  models.ChunkTypeText,
				Content:    chunkText,
				Metadata: map[string]interface{}{
					"page":          pageNum,
					"chunk_in_page": chunkInPage,
					"total_pages":   totalPages,
				},
			})
			ordinal++
		}

		for imageIndex, raw := range p.extractPageImages(page) {
			chunk, err := p.buildImageChunk(ctx, file, raw.data, ordinal, map[string]interface{}{
				"page":            pageNum,
				"image_index":     imageIndex,
				"total_pages":     totalPages,
				"original_format": raw.format,
			})
			if err != nil {
				p.logger.Warn("skipping embedded image",
					"file_id", file.ID, "page", pageNum, "image_index", imageIndex, "error", err)
				continue
			}
			doc.Chunks = append(doc.Chunks, chunk)
			ordinal++
		}
	}

	return doc, nil
}

func (p *DocumentProcessor) processImage(ctx context.Context, file *models.File, data []byte) (*ProcessedDocument, error) {
	format := strings.TrimPrefix(file.ContentType, "image/")
	chunk, err := p.buildImageChunk(ctx, file, data, 0, map[string]interface{}{
		"original_format": format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return &ProcessedDocument{Chunks: []*models.DocumentChunk{chunk}}, nil
}

// buildImageChunk runs OCR and downscaling for one image and assembles the
// IMAGE chunk. OCR failure degrades to an empty caption.
func (p *DocumentProcessor) buildImageChunk(ctx context.Context, file *models.File, data []byte, ordinal int, metadata map[string]interface{}) (*models.DocumentChunk, error) {
	png, err := downscaleToPNG(data)
	if err != nil {
		return nil, err
	}

	caption := ""
	if p.ocr != nil {
		caption, err = p.ocr.Caption(ctx, png)
		if err != nil {
			p.logger.Warn("OCR failed, using empty caption", "file_id", file.ID, "error", err)
			caption = ""
		}
	}

	return &models.DocumentChunk{
		ID:         uuid.New().String(),
		FileID:     file.ID,
		UserID:     file.UserID,
		ChunkIndex: ordinal,
		ChunkType:  models.ChunkTypeImage,
		Content:    caption,
		RawContent: png,
		Metadata:   metadata,
	}, nil
}

type rawImage struct {
	data   []byte
	format string
}

// extractPageImages walks the page's XObject resources and collects image
// streams whose bytes decode as a supported image. Undecodable streams are
// skipped.
func (p *DocumentProcessor) extractPageImages(page pdf.Page) []rawImage {
	resources := page.Resources()
	if resources.IsNull() {
		return nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	var images []rawImage
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Kind() != pdf.Stream {
			continue
		}
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}

		stream := obj.Reader()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(stream); err != nil {
			stream.Close()
			p.logger.Debug("unreadable image stream", "xobject", name, "error", err)
			continue
		}
		stream.Close()

		// Only keep streams that decode as a real image; raw pixel
		// streams without a recognizable container are skipped.
		if _, format, err := image.DecodeConfig(bytes.NewReader(buf.Bytes())); err == nil {
			images = append(images, rawImage{data: buf.Bytes(), format: format})
		} else {
			p.logger.Debug("undecodable image stream", "xobject", name)
		}
	}
	return images
}

// downscaleToPNG fits the image within maxImageDimension on both axes using
// Lanczos resampling and re-encodes it as PNG.
func downscaleToPNG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDimension || bounds.Dy() > maxImageDimension {
		img = imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return out.Bytes(), nil
}
