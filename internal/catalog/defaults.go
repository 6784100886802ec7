package catalog

import "github.com/Lllllllleong/formatconvert/internal/models"

// Compiled-in catalog used at process start and whenever a refresh fails.

var documentDefaults = models.SupportedFormats{
	SourceFormats: []string{"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "rtf", "html"},
	ConversionMap: map[string][]string{
		"pdf":  {"doc", "docx", "ppt", "pptx", "xls", "xlsx", "txt", "rtf"},
		"doc":  {"docx", "rtf", "txt", "odt", "html", "pdf"},
		"docx": {"doc", "rtf", "txt", "odt", "html", "pdf"},
		"xls":  {"xlsx", "ods", "csv", "txt", "pdf", "doc"},
		"xlsx": {"xls", "ods", "csv", "txt", "pdf", "doc"},
		"ppt":  {"pptx", "odp", "pdf"},
		"pptx": {"ppt", "odp", "pdf"},
		"txt":  {"doc", "docx", "rtf", "odt", "pdf", "xls", "xlsx"},
		"rtf":  {"doc", "docx", "txt", "odt"},
		"html": {"pdf", "doc", "docx"},
	},
	ExtensionWhitelist: map[string][]string{
		"pdf":  {".pdf"},
		"doc":  {".doc"},
		"docx": {".docx"},
		"xls":  {".xls"},
		"xlsx": {".xlsx"},
		"ppt":  {".ppt"},
		"pptx": {".pptx"},
		"txt":  {".txt"},
		"rtf":  {".rtf"},
		"html": {".html", ".htm"},
	},
	DisplayNames: map[string]string{
		"pdf":  "PDF",
		"doc":  "Word(.doc)",
		"docx": "Word(.docx)",
		"xls":  "Excel(.xls)",
		"xlsx": "Excel(.xlsx)",
		"ppt":  "PPT(.ppt)",
		"pptx": "PPT(.pptx)",
		"txt":  "TXT",
		"rtf":  "RTF",
		"html": "HTML",
		"csv":  "CSV",
		"odt":  "ODT",
		"ods":  "ODS",
		"odp":  "ODP",
	},
}

var audioDefaults = models.SupportedFormats{
	SourceFormats: []string{"mp3", "wav", "aac", "flac", "m4a", "ogg", "wma"},
	ConversionMap: map[string][]string{
		"mp3":  {"wav", "aac", "flac", "m4a", "ogg", "wma"},
		"wav":  {"mp3", "aac", "flac", "m4a", "ogg", "wma"},
		"aac":  {"mp3", "wav", "m4a", "flac"},
		"flac": {"wav", "mp3", "aac"},
		"ogg":  {"mp3", "wav", "flac"},
		"m4a":  {"mp3", "wav", "aac"},
		"wma":  {"mp3", "wav", "aac"},
	},
	ExtensionWhitelist: map[string][]string{
		"mp3":  {".mp3"},
		"wav":  {".wav"},
		"aac":  {".aac"},
		"flac": {".flac"},
		"m4a":  {".m4a"},
		"ogg":  {".ogg"},
		"wma":  {".wma"},
	},
	DisplayNames: map[string]string{
		"mp3":  "MP3",
		"wav":  "WAV",
		"aac":  "AAC",
		"flac": "FLAC",
		"m4a":  "M4A",
		"ogg":  "OGG",
		"wma":  "WMA",
	},
}

// Defaults returns a fresh copy of the built-in formats for a category.
func Defaults(category models.Category) (*Formats, bool) {
	switch category {
	case models.CategoryDocument:
		f, err := normalize(&documentDefaults)
		return f, err == nil
	case models.CategoryAudio:
		f, err := normalize(&audioDefaults)
		return f, err == nil
	}
	return nil, false
}
