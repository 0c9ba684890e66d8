package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/domain"
)

const uniqueViolation = "23505"

// Store is the Postgres system of record for exams, results, users and credentials.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- exams ---

const examColumns = `id, title, description, cover_image, difficulty, timer_minutes, teacher_id, created_at`

func scanExam(row pgx.Row) (domain.Exam, error) {
	var e domain.Exam
	var difficulty string
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.CoverImage, &difficulty, &e.TimerMinutes, &e.TeacherID, &e.CreatedAt); err != nil {
		return domain.Exam{}, err
	}
	e.Difficulty = domain.Difficulty(difficulty)
	return e, nil
}

func (s *Store) CreateExam(ctx context.Context, e domain.Exam) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exams (`+examColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Title, e.Description, e.CoverImage, string(e.Difficulty), e.TimerMinutes, e.TeacherID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	return nil
}

func (s *Store) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	return getExam(ctx, s.pool, examID)
}

func getExam(ctx context.Context, q querier, examID string) (domain.Exam, error) {
	e, err := scanExam(q.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, examID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateExam(ctx context.Context, e domain.Exam) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE exams SET title = $2, description = $3, cover_image = $4, difficulty = $5, timer_minutes = $6 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.CoverImage, string(e.Difficulty), e.TimerMinutes)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamNotFound
	}
	return nil
}

// DeleteExam removes the exam; its questions go with it via ON DELETE CASCADE.
func (s *Store) DeleteExam(ctx context.Context, examID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, examID)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamNotFound
	}
	return nil
}

func (s *Store) ListExams(ctx context.Context, filter app.ExamFilter) ([]domain.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams`
	var args []interface{}
	if filter.TeacherID != "" {
		query += ` WHERE teacher_id = $1`
		args = append(args, filter.TeacherID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()
	exams := []domain.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// --- questions ---

func (s *Store) ListQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	if _, err := s.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return listQuestions(ctx, s.pool, examID)
}

func listQuestions(ctx context.Context, q querier, examID string) ([]domain.Question, error) {
	rows, err := q.Query(ctx,
		`SELECT id, question, options, correct_answer, image FROM questions WHERE exam_id = $1 ORDER BY position, id`,
		examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	questions := []domain.Question{}
	for rows.Next() {
		var qn domain.Question
		var options []byte
		if err := rows.Scan(&qn.ID, &qn.Text, &options, &qn.CorrectAnswer, &qn.Image); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(options, &qn.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", qn.ID, err)
		}
		questions = append(questions, qn)
	}
	return questions, rows.Err()
}

// PutQuestion replaces a question in place or appends it after the last one.
func (s *Store) PutQuestion(ctx context.Context, examID string, qn domain.Question) error {
	options, err := json.Marshal(qn.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO questions (exam_id, id, position, question, options, correct_answer, image)
		SELECT e.id, $2,
		       COALESCE((SELECT MAX(position) + 1 FROM questions WHERE exam_id = $1), 0),
		       $3, $4, $5, $6
		FROM exams e WHERE e.id = $1
		ON CONFLICT (exam_id, id) DO UPDATE SET
		    question = EXCLUDED.question,
		    options = EXCLUDED.options,
		    correct_answer = EXCLUDED.correct_answer,
		    image = EXCLUDED.image`,
		examID, qn.ID, qn.Text, options, qn.CorrectAnswer, qn.Image)
	if err != nil {
		return fmt.Errorf("put question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamNotFound
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, examID, questionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1 AND id = $2`, examID, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

// LoadExamContent reads the exam and its questions from one snapshot.
func (s *Store) LoadExamContent(ctx context.Context, examID string) (domain.ExamContent, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.ExamContent{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	exam, err := getExam(ctx, tx, examID)
	if err != nil {
		return domain.ExamContent{}, err
	}
	questions, err := listQuestions(ctx, tx, examID)
	if err != nil {
		return domain.ExamContent{}, err
	}
	return domain.ExamContent{Exam: exam, Questions: questions}, nil
}

// --- results ---

const resultColumns = `id, exam_id, student_id, score, correct_answers, total_questions, submitted_at, answers`

func scanResult(row pgx.Row) (domain.ExamResult, error) {
	var r domain.ExamResult
	var answers []byte
	if err := row.Scan(&r.ID, &r.ExamID, &r.StudentID, &r.Score, &r.CorrectAnswers, &r.TotalQuestions, &r.SubmittedAt, &answers); err != nil {
		return domain.ExamResult{}, err
	}
	r.Answers = map[string]string{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &r.Answers); err != nil {
			return domain.ExamResult{}, fmt.Errorf("decode answers: %w", err)
		}
	}
	return r, nil
}

// CreateResult inserts the single result of (exam, student); the unique
// constraint turns a second insert into ErrResultExists.
func (s *Store) CreateResult(ctx context.Context, r domain.ExamResult) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO exam_results (`+resultColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ResultID(r.ExamID, r.StudentID), r.ExamID, r.StudentID, r.Score, r.CorrectAnswers, r.TotalQuestions, r.SubmittedAt, answers)
	if isUniqueViolation(err) {
		return domain.ErrResultExists
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, examID, studentID string) (domain.ExamResult, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM exam_results WHERE exam_id = $1 AND student_id = $2`, examID, studentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExamResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.ExamResult{}, fmt.Errorf("load result: %w", err)
	}
	return r, nil
}

func (s *Store) ListResultsByExam(ctx context.Context, examID string) ([]domain.ExamResult, error) {
	return s.listResults(ctx, ` WHERE exam_id = $1`, examID)
}

func (s *Store) ListResultsByStudent(ctx context.Context, studentID string) ([]domain.ExamResult, error) {
	return s.listResults(ctx, ` WHERE student_id = $1`, studentID)
}

func (s *Store) ListResults(ctx context.Context) ([]domain.ExamResult, error) {
	return s.listResults(ctx, ``)
}

func (s *Store) listResults(ctx context.Context, where string, args ...interface{}) ([]domain.ExamResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM exam_results`+where+` ORDER BY submitted_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	results := []domain.ExamResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- users ---

const userColumns = `id, national_id, first_name, last_name, role`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var role string
	if err := row.Scan(&u.ID, &u.NationalID, &u.FirstName, &u.LastName, &role); err != nil {
		return domain.User{}, err
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = parsed
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// FindUserByNationalID prefers a record already keyed by the national ID.
func (s *Store) FindUserByNationalID(ctx context.Context, nationalID string) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE national_id = $1 ORDER BY (id = national_id) DESC, id LIMIT 1`,
		nationalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, u domain.User) error {
	return putUser(ctx, s.pool, u)
}

func putUser(ctx context.Context, q querier, u domain.User) error {
	if u.ID == "" {
		return domain.Errorf(domain.KindValidation, "user id is required")
	}
	_, err := q.Exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    national_id = EXCLUDED.national_id,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    role = EXCLUDED.role`,
		u.ID, u.NationalID, u.FirstName, u.LastName, u.Role.String())
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// BeginUserBatch opens a transaction; staged writes become visible on Commit only.
func (s *Store) BeginUserBatch(ctx context.Context) (app.UserBatch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin user batch: %w", err)
	}
	return &userBatch{tx: tx}, nil
}

type userBatch struct {
	tx pgx.Tx
}

func (b *userBatch) Put(ctx context.Context, u domain.User) error {
	return putUser(ctx, b.tx, u)
}

func (b *userBatch) Delete(ctx context.Context, userID string) error {
	if _, err := b.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (b *userBatch) Reassign(ctx context.Context, from, to string) error {
	if _, err := b.tx.Exec(ctx, `UPDATE credentials SET user_id = $2 WHERE user_id = $1`, from, to); err != nil {
		return fmt.Errorf("reassign credential: %w", err)
	}
	if _, err := b.tx.Exec(ctx,
		`UPDATE exam_results SET student_id = $2, id = $2 || ':' || exam_id WHERE student_id = $1`, from, to); err != nil {
		return fmt.Errorf("reassign results: %w", err)
	}
	return nil
}

func (b *userBatch) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

func (b *userBatch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// --- credentials ---

func (s *Store) PutCredential(ctx context.Context, c domain.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, identifier, password_hash) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
		    identifier = EXCLUDED.identifier,
		    password_hash = EXCLUDED.password_hash`,
		c.UserID, c.Identifier, c.PasswordHash)
	if isUniqueViolation(err) {
		return &domain.Error{Kind: domain.KindConflict, Op: "put credential", Msg: "identifier already registered"}
	}
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (s *Store) CredentialByUser(ctx context.Context, userID string) (domain.Credential, error) {
	return s.credential(ctx, `user_id = $1`, userID)
}

func (s *Store) CredentialByIdentifier(ctx context.Context, identifier string) (domain.Credential, error) {
	return s.credential(ctx, `identifier = $1`, identifier)
}

func (s *Store) credential(ctx context.Context, where string, arg string) (domain.Credential, error) {
	var c domain.Credential
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, identifier, password_hash FROM credentials WHERE `+where, arg).
		Scan(&c.UserID, &c.Identifier, &c.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("load credential: %w", err)
	}
	return c, nil
}
