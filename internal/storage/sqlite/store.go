package sqlite

// Store serves questions and answers from one database.
type Store struct {
	*QuestionStore
	*AnswerStore
}

// NewStore creates the combined store.
func NewStore(db *DB) *Store {
	return &Store{
		QuestionStore: NewQuestionStore(db),
		AnswerStore:   NewAnswerStore(db),
	}
}
