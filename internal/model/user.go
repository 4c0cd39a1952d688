package model

import "time"

// User represents a row of the `users` table as far as mobile admission is
// concerned.  Every user belongs to exactly one customer account, whose
// licenses bound how many users may hold a seat at the same time.
//
// Fields:
//  ID           – primary key identifier of the user.
//  CustomerID   – owning customer account.
//  Login        – unique login name.
//  FullName     – display name, embedded in issued mobile tokens.
//  PasswordHash – bcrypt hashed password.
//  IsActive     – whether the account may log in at all.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64    // users.id
	CustomerID   uint64    // users.customer_id
	Login        string    // users.login
	FullName     string    // users.full_name
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
}
