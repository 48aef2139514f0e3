package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateEmail はメールアドレスのユニーク制約違反を表す。
var ErrDuplicateEmail = errors.New("email already registered")

// pgUniqueViolation はPostgreSQLのunique_violationエラーコード。
const pgUniqueViolation = "23505"

// isUniqueViolation はエラーがユニーク制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

// pgInvalidTextRepresentation はUUIDの書式不正などで返るエラーコード。
const pgInvalidTextRepresentation = "22P02"

// isInvalidText はエラーが入力値の書式不正（不正なUUIDなど）かを判定する。
func isInvalidText(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgInvalidTextRepresentation
	}
	return false
}
