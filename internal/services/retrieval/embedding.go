package retrieval

import (
	"math"
	"strings"
)

// tfidfEmbedder builds TF-IDF vectors over the article corpus. A local
// vocabulary keeps the adapter self-contained; swapping in a model-backed
// embedder only needs these two methods.
type tfidfEmbedder struct {
	vocabulary map[string]int
	idf        map[string]float64
}

func newTFIDFEmbedder() *tfidfEmbedder {
	return &tfidfEmbedder{
		vocabulary: make(map[string]int),
		idf:        make(map[string]float64),
	}
}

// buildVocabulary derives vocabulary and inverse document frequencies from
// the corpus texts.
func (e *tfidfEmbedder) buildVocabulary(texts []string) {
	e.vocabulary = make(map[string]int)
	e.idf = make(map[string]float64)

	df := make(map[string]int)
	totalDocs := len(texts)

	vocabIndex := 0
	for _, text := range texts {
		tokens := tokenize(text)
		seen := make(map[string]bool)

		for _, token := range tokens {
			if _, exists := e.vocabulary[token]; !exists {
				e.vocabulary[token] = vocabIndex
				vocabIndex++
			}
			if !seen[token] {
				df[token]++
				seen[token] = true
			}
		}
	}

	for token, freq := range df {
		e.idf[token] = math.Log(float64(totalDocs) / float64(freq))
	}
}

// embed returns the TF-IDF vector for a text.
func (e *tfidfEmbedder) embed(text string) []float32 {
	tokens := tokenize(text)
	vector := make([]float32, len(e.vocabulary))
	if len(tokens) == 0 {
		return vector
	}

	tf := make(map[string]int)
	for _, token := range tokens {
		tf[token]++
	}

	for token, freq := range tf {
		if idx, exists := e.vocabulary[token]; exists {
			tfValue := float64(freq) / float64(len(tokens))
			vector[idx] = float32(tfValue * e.idf[token])
		}
	}
	return vector
}

// cosineSimilarity between two vectors of equal length.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

var tokenReplacer = strings.NewReplacer(
	".", " ", ",", " ", ";", " ", ":", " ",
	"!", " ", "?", " ", "(", " ", ")", " ",
	"[", " ", "]", " ", "{", " ", "}", " ",
	"\"", " ", "'", " ", "-", " ", "_", " ",
	"\n", " ", "\t", " ", "\r", " ",
)

// tokenize splits text into lowercase word tokens, dropping short words
// and bare numbers.
func tokenize(text string) []string {
	text = tokenReplacer.Replace(strings.ToLower(text))
	words := strings.Fields(text)

	var tokens []string
	for _, word := range words {
		if len(word) > 2 && !isNumber(word) {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
