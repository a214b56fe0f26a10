// quality.go — эвристическая оценка качества контента версии.
// Оценка пересчитывается при каждом создании версии и участвует
// в ранжировании поиска с весом 0.3.
package versionstore

import (
	"bytes"
	"image"
	"strings"
	"unicode"

	// Регистрация декодеров для оценки разрешения изображений
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// ComputeQuality возвращает оценку качества 0..1 для контента версии.
// Эвристика зависит от типа артефакта:
//   - document: количество слов + читаемость
//   - code: размер + сложность (длина строк, доля комментариев)
//   - image: пороги разрешения
//   - остальные: размер + checksum + полнота метаданных
func ComputeQuality(a *model.Artifact, content model.ContentBlob) float64 {
	var score float64

	switch a.Type {
	case model.TypeDocument:
		score = documentQuality(content)
	case model.TypeCode:
		score = codeQuality(content)
	case model.TypeImage:
		score = imageQuality(content)
	default:
		score = genericQuality(content)
	}

	// Бонус за полноту метаданных артефакта
	if a.Description != "" {
		score += 0.1
	}
	if len(a.Tags) > 0 {
		score += 0.05
	}

	return clamp01(score)
}

// documentQuality оценивает текстовый документ: до 0.5 за объём
// (насыщение на 500 словах) и до 0.35 за читаемость
// (средняя длина слова в диапазоне 3..8 символов).
func documentQuality(content model.ContentBlob) float64 {
	words := strings.Fields(string(content.Data))
	if len(words) == 0 {
		return 0.1
	}

	wordScore := float64(len(words)) / 500.0
	if wordScore > 1 {
		wordScore = 1
	}

	var totalLen int
	for _, w := range words {
		totalLen += len([]rune(w))
	}
	avgLen := float64(totalLen) / float64(len(words))

	readability := 0.0
	if avgLen >= 3 && avgLen <= 8 {
		readability = 1.0
	} else if avgLen > 8 && avgLen <= 12 {
		readability = 0.5
	}

	return wordScore*0.5 + readability*0.35
}

// codeQuality оценивает код: до 0.4 за объём (насыщение на 50 строках),
// до 0.25 за долю комментариев (идеал 10–40%), до 0.2 за отсутствие
// чрезмерно длинных строк (>120 символов).
func codeQuality(content model.ContentBlob) float64 {
	lines := strings.Split(string(content.Data), "\n")
	if len(lines) == 0 || len(bytes.TrimSpace(content.Data)) == 0 {
		return 0.1
	}

	sizeScore := float64(len(lines)) / 50.0
	if sizeScore > 1 {
		sizeScore = 1
	}

	var comments, long int
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "--") || strings.HasPrefix(trimmed, "/*") {
			comments++
		}
		if len(line) > 120 {
			long++
		}
	}

	commentRatio := float64(comments) / float64(len(lines))
	commentScore := 0.0
	if commentRatio >= 0.1 && commentRatio <= 0.4 {
		commentScore = 1.0
	} else if commentRatio > 0 {
		commentScore = 0.5
	}

	lineScore := 1.0 - float64(long)/float64(len(lines))

	return sizeScore*0.4 + commentScore*0.25 + lineScore*0.2
}

// imageQuality оценивает изображение по порогам разрешения.
// Если декодер не распознал формат — минимальная оценка.
func imageQuality(content model.ContentBlob) float64 {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content.Data))
	if err != nil {
		return 0.3
	}

	switch {
	case cfg.Width >= 1920 && cfg.Height >= 1080:
		return 0.85
	case cfg.Width >= 1280 && cfg.Height >= 720:
		return 0.7
	case cfg.Width >= 640 && cfg.Height >= 480:
		return 0.5
	default:
		return 0.35
	}
}

// genericQuality — базовая эвристика для типов без специализированной
// оценки: наличие данных, checksum и размер.
func genericQuality(content model.ContentBlob) float64 {
	score := 0.2
	if content.Size > 0 {
		score += 0.25
	}
	if content.Checksum != "" {
		score += 0.2
	}
	if content.ContentType != "" {
		score += 0.1
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
