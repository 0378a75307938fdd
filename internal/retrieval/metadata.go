package retrieval

import "github.com/hyperjump/kotae/internal/models"

// documentMetadata merges caller metadata with the reserved keys; reserved keys win.
func documentMetadata(id string, in *models.DocumentInput) map[string]interface{} {
	meta := make(map[string]interface{}, len(in.Metadata)+3)
	for k, v := range in.Metadata {
		meta[k] = v
	}
	meta[models.MetaDocumentID] = id
	meta[models.MetaFileType] = in.FileType
	meta[models.MetaFileName] = in.FileName
	return meta
}

// restoredMetadata rebuilds document metadata read back from storage. Reserved keys are taken
// from the document columns so their types match freshly stored documents.
func restoredMetadata(doc *models.Document) map[string]interface{} {
	meta := make(map[string]interface{}, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[models.MetaDocumentID] = doc.ID
	meta[models.MetaFileType] = doc.FileType
	meta[models.MetaFileName] = doc.FileName
	return meta
}

func chunkMetadata(docMeta map[string]interface{}, index int) map[string]interface{} {
	meta := make(map[string]interface{}, len(docMeta)+1)
	for k, v := range docMeta {
		meta[k] = v
	}
	meta[models.MetaChunkIndex] = index
	return meta
}
