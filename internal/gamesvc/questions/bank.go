package questions

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
)

// Reward is credited to a player for a correct or approved answer.
type Reward struct {
	Money     int64 `json:"money"`
	Influence int64 `json:"influence"`
}

// Question is one entry of the bank. A nil Correct index means the answer
// cannot be graded automatically and goes through Politician review.
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
	Correct *int     `json:"correct,omitempty"`
	Reward  Reward   `json:"reward"`
}

func (q *Question) AutoGraded() bool {
	return q.Correct != nil
}

// Bank is the read-only question set, loaded once at boot.
type Bank struct {
	list []Question
	byID map[int]Question
}

// Load reads the bank from a JSON file and fails on the first malformed
// entry. Services hold the returned Bank for the life of the process.
func Load(path string) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	var list []Question
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse question bank %s: %w", path, err)
	}

	byID := make(map[int]Question, len(list))
	for i, q := range list {
		if q.ID == 0 {
			return nil, fmt.Errorf("question %d in %s has no id", i, path)
		}
		if q.Text == "" {
			return nil, fmt.Errorf("question %d in %s has no text", q.ID, path)
		}
		if q.Correct != nil && (*q.Correct < 0 || *q.Correct >= len(q.Choices)) {
			return nil, fmt.Errorf("question %d in %s: correct index %d out of range", q.ID, path, *q.Correct)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d in %s", q.ID, path)
		}
		byID[q.ID] = q
	}

	return &Bank{list: list, byID: byID}, nil
}

func (b *Bank) Len() int {
	return len(b.list)
}

func (b *Bank) ByID(id int) (Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Random picks a question uniformly. ok is false on an empty bank.
func (b *Bank) Random(rng *rand.Rand) (Question, bool) {
	if len(b.list) == 0 {
		return Question{}, false
	}
	return b.list[rng.Intn(len(b.list))], true
}
