package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"easyform/internal/log"
	"easyform/internal/metrics"
	"easyform/internal/models"
	"easyform/internal/repositories"
)

const minImageTopK = 5

// RAGService owns document ingestion and retrieval. Chunks live in the chunk
// store; their vectors live in two ChromaDB collections (text space and image
// space) sharing chunk ids.
type RAGService struct {
	chunkRepo     repositories.ChunkRepository
	fileRepo      repositories.FileRepository
	textIndex     repositories.VectorRepository
	imageIndex    repositories.VectorRepository
	textEmbedder  TextEmbedder
	imageEmbedder ImageEmbedder
	processor     *DocumentProcessor
	topK          int
	logger        *slog.Logger
}

// NewRAGService wires the retrieval stack together.
func NewRAGService(
	chunkRepo repositories.ChunkRepository,
	fileRepo repositories.FileRepository,
	textIndex repositories.VectorRepository,
	imageIndex repositories.VectorRepository,
	textEmbedder TextEmbedder,
	imageEmbedder ImageEmbedder,
	processor *DocumentProcessor,
	topK int,
) *RAGService {
	return &RAGService{
		chunkRepo:     chunkRepo,
		fileRepo:      fileRepo,
		textIndex:     textIndex,
		imageIndex:    imageIndex,
		textEmbedder:  textEmbedder,
		imageEmbedder: imageEmbedder,
		processor:     processor,
		topK:          topK,
		logger:        log.WithModule("rag_service"),
	}
}

// EnsureCollections creates both vector collections if missing.
func (s *RAGService) EnsureCollections(ctx context.Context) error {
	if err := s.textIndex.EnsureCollection(ctx); err != nil {
		return err
	}
	return s.imageIndex.EnsureCollection(ctx)
}

// IngestFile processes an uploaded file into chunks and indexes them. The
// file record is moved to processing, then completed or failed; the raw bytes
// are discarded afterwards.
func (s *RAGService) IngestFile(ctx context.Context, file *models.File, data []byte) error {
	file.Status = models.FileStatusProcessing
	file.UpdatedAt = time.Now()
	if err := s.fileRepo.UpdateFile(ctx, file); err != nil {
		return fmt.Errorf("failed to mark file processing: %w", err)
	}

	if err := s.ingest(ctx, file, data); err != nil {
		// Unsupported formats are not failures: the file completes with no
		// chunks and is simply never indexed.
		if IsUnsupportedFormat(err) {
			s.logger.Warn("unsupported format, skipping indexing",
				"file_id", file.ID, "content_type", file.ContentType)
			metrics.FilesProcessed.WithLabelValues("skipped").Inc()
			file.Status = models.FileStatusCompleted
			file.Error = ""
			file.UpdatedAt = time.Now()
			if updateErr := s.fileRepo.UpdateFile(ctx, file); updateErr != nil {
				s.logger.Error("failed to mark file completed", "file_id", file.ID, "error", updateErr)
			}
			return nil
		}

		s.logger.Error("file ingestion failed", "file_id", file.ID, "error", err)
		metrics.FilesProcessed.WithLabelValues("failed").Inc()
		file.Status = models.FileStatusFailed
		file.Error = err.Error()
		file.UpdatedAt = time.Now()
		if updateErr := s.fileRepo.UpdateFile(ctx, file); updateErr != nil {
			s.logger.Error("failed to mark file failed", "file_id", file.ID, "error", updateErr)
		}
		return err
	}

	metrics.FilesProcessed.WithLabelValues("completed").Inc()
	return nil
}

func (s *RAGService) ingest(ctx context.Context, file *models.File, data []byte) error {
	doc, err := s.processor.Process(ctx, file, data)
	if err != nil {
		return err
	}

	if err := s.chunkRepo.CreateChunks(ctx, doc.Chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	textChunks := make([]*models.DocumentChunk, 0, len(doc.Chunks))
	imageChunks := make([]*models.DocumentChunk, 0)
	for _, chunk := range doc.Chunks {
		switch chunk.ChunkType {
		case models.ChunkTypeImage:
			imageChunks = append(imageChunks, chunk)
		default:
			textChunks = append(textChunks, chunk)
		}
	}

	if err := s.indexTextChunks(ctx, textChunks); err != nil {
		return err
	}
	// Image captions also go into the text index so caption matches work
	// even without the image gateway.
	if err := s.indexTextChunks(ctx, captionedChunks(imageChunks)); err != nil {
		return err
	}
	if err := s.indexImageChunks(ctx, imageChunks); err != nil {
		return err
	}

	file.Status = models.FileStatusCompleted
	file.ChunkCount = len(doc.Chunks)
	if doc.PageCount > 0 {
		pages := doc.PageCount
		file.PageCount = &pages
	}
	file.Error = ""
	file.UpdatedAt = time.Now()
	if err := s.fileRepo.UpdateFile(ctx, file); err != nil {
		return fmt.Errorf("failed to mark file completed: %w", err)
	}

	s.logger.Info("file ingested",
		"file_id", file.ID, "chunks", len(doc.Chunks), "pages", doc.PageCount)
	return nil
}

// captionedChunks filters image chunks down to those with a non-empty caption.
func captionedChunks(chunks []*models.DocumentChunk) []*models.DocumentChunk {
	out := make([]*models.DocumentChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Content != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func (s *RAGService) indexTextChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := s.textEmbedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed text chunks: %w", err)
	}

	ids, documents, metadatas := vectorRows(chunks)
	if err := s.textIndex.AddEmbeddings(ctx, ids, documents, embeddings, metadatas); err != nil {
		return fmt.Errorf("failed to index text chunks: %w", err)
	}
	metrics.ChunksIndexed.WithLabelValues("text").Add(float64(len(chunks)))
	return nil
}

func (s *RAGService) indexImageChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	if len(chunks) == 0 || !s.imageEmbedder.Enabled() {
		return nil
	}

	embeddings := make([][]float32, 0, len(chunks))
	kept := make([]*models.DocumentChunk, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := s.imageEmbedder.EmbedImage(ctx, chunk.RawContent)
		if err != nil {
			s.logger.Warn("image embedding failed, skipping chunk",
				"chunk_id", chunk.ID, "error", err)
			continue
		}
		embeddings = append(embeddings, embedding)
		kept = append(kept, chunk)
	}
	if len(kept) == 0 {
		return nil
	}

	ids, documents, metadatas := vectorRows(kept)
	if err := s.imageIndex.AddEmbeddings(ctx, ids, documents, embeddings, metadatas); err != nil {
		return fmt.Errorf("failed to index image chunks: %w", err)
	}
	metrics.ChunksIndexed.WithLabelValues("image").Add(float64(len(kept)))
	return nil
}

func vectorRows(chunks []*models.DocumentChunk) ([]string, []string, []map[string]interface{}) {
	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
		documents[i] = chunk.Content
		metadata := map[string]interface{}{
			"user_id":    chunk.UserID,
			"file_id":    chunk.FileID,
			"chunk_type": string(chunk.ChunkType),
		}
		if page, ok := chunk.PageNumber(); ok {
			metadata["page"] = page
		}
		metadatas[i] = metadata
	}
	return ids, documents, metadatas
}

// RetrieveRelevantContext searches both vector spaces for the query and
// returns joined chunks sorted by similarity. Retrieval never fails the
// caller: any error degrades to an empty result.
func (s *RAGService) RetrieveRelevantContext(ctx context.Context, userID, query string) []models.RetrievedChunk {
	textEmbedding, err := s.textEmbedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, retrieval degraded to empty",
			"user_id", userID, "error", err)
		return nil
	}

	hits, err := s.textIndex.Query(ctx, textEmbedding, s.topK, userID)
	if err != nil {
		s.logger.Warn("text index query failed, retrieval degraded to empty",
			"user_id", userID, "error", err)
		return nil
	}

	if s.imageEmbedder.Enabled() {
		imageTopK := s.topK / 2
		if imageTopK < minImageTopK {
			imageTopK = minImageTopK
		}
		if imageEmbedding, err := s.imageEmbedder.EmbedQuery(ctx, query); err != nil {
			s.logger.Warn("image query embedding failed, using text hits only",
				"user_id", userID, "error", err)
		} else if imageHits, err := s.imageIndex.Query(ctx, imageEmbedding, imageTopK, userID); err != nil {
			s.logger.Warn("image index query failed, using text hits only",
				"user_id", userID, "error", err)
		} else {
			hits = append(hits, imageHits...)
		}
	}

	return s.joinHits(ctx, hits)
}

// joinHits deduplicates hits by chunk id keeping the best similarity, joins
// them against the chunk store and labels each result with its source.
func (s *RAGService) joinHits(ctx context.Context, hits []models.VectorHit) []models.RetrievedChunk {
	if len(hits) == 0 {
		return nil
	}

	best := make(map[string]float32, len(hits))
	order := make([]string, 0, len(hits))
	for _, hit := range hits {
		similarity := hit.Similarity()
		if existing, ok := best[hit.ChunkID]; ok {
			if similarity > existing {
				best[hit.ChunkID] = similarity
			}
			continue
		}
		best[hit.ChunkID] = similarity
		order = append(order, hit.ChunkID)
	}

	chunks, missing, err := s.chunkRepo.GetChunksByIDs(ctx, order)
	if err != nil {
		s.logger.Warn("chunk store join failed, retrieval degraded to empty", "error", err)
		return nil
	}
	if len(missing) > 0 {
		s.logger.Warn("vector hits without chunk records", "missing", len(missing))
	}

	filenames := make(map[string]string)
	results := make([]models.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, models.RetrievedChunk{
			Chunk:       chunk,
			Similarity:  best[chunk.ID],
			SourceLabel: s.sourceLabel(ctx, chunk, filenames),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results
}

// sourceLabel renders "{filename} (page {n})" when the file record and page
// are known, falling back to the file id.
func (s *RAGService) sourceLabel(ctx context.Context, chunk *models.DocumentChunk, filenames map[string]string) string {
	filename, seen := filenames[chunk.FileID]
	if !seen {
		if file, err := s.fileRepo.GetFile(ctx, chunk.FileID); err == nil {
			filename = file.Filename
		}
		filenames[chunk.FileID] = filename
	}
	if filename == "" {
		return "file:" + chunk.FileID
	}
	if page, ok := chunk.PageNumber(); ok {
		return filename + " (page " + strconv.Itoa(page) + ")"
	}
	return filename
}

// DeleteFile removes a file's vectors, chunks and metadata record.
func (s *RAGService) DeleteFile(ctx context.Context, userID, fileID string) error {
	if _, err := s.textIndex.DeleteByFile(ctx, userID, fileID); err != nil {
		return fmt.Errorf("failed to delete text vectors: %w", err)
	}
	if _, err := s.imageIndex.DeleteByFile(ctx, userID, fileID); err != nil {
		return fmt.Errorf("failed to delete image vectors: %w", err)
	}
	if _, err := s.chunkRepo.DeleteChunksByFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.fileRepo.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	s.logger.Info("file deleted", "file_id", fileID, "user_id", userID)
	return nil
}
