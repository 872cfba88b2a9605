package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUserNotFound indicates no user row exists for the id.
	ErrUserNotFound = errors.New("user not found")

	// ErrProjectNotFound indicates the project row does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrMemberNotFound indicates the user is not a member of the project.
	ErrMemberNotFound = errors.New("user is not a member of this project")

	// ErrRoleNotFound indicates the role does not exist in the project.
	ErrRoleNotFound = errors.New("role not found")

	// ErrAlreadyMember indicates the user already belongs to the project.
	ErrAlreadyMember = errors.New("user is already a member of this project")

	// ErrRoleInUse indicates members still hold the role being deleted.
	ErrRoleInUse = errors.New("role is assigned to members")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgErrorCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pgErrorCode(err)
	return code == pgUniqueViolation
}

func isForeignKeyViolation(err error) (bool, string) {
	code, constraint := pgErrorCode(err)
	return code == pgForeignKeyViolation, constraint
}
