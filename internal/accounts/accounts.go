// Package accounts loads the user list from a YAML file and checks passwords
// against the bcrypt hashes stored there.
package accounts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPendingApproval    = errors.New("account pending approval")
)

// Example users file:
//
//	users:
//	  - username: alice
//	    password_hash: $2a$10$...
//	    role: admin
//	  - username: bob
//	    password_hash: $2a$10$...
//	    approved: false
type User struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
	Approved     *bool  `yaml:"approved"`
}

func (u User) IsApproved() bool {
	return u.Approved == nil || *u.Approved
}

type file struct {
	Users []User `yaml:"users"`
}

type Store struct {
	users map[string]User
}

// dummyHash keeps the cost of a failed lookup close to a real comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("reelshelf-unknown-user"), bcrypt.DefaultCost)

// Load reads the users file at path.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Store from YAML. Usernames are matched case-insensitively and
// must be unique; roles default to "user" and ids to the username.
func Parse(raw []byte) (*Store, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	s := &Store{users: make(map[string]User, len(f.Users))}
	for i, u := range f.Users {
		u.Username = strings.TrimSpace(u.Username)
		if u.Username == "" {
			return nil, fmt.Errorf("users[%d]: username required", i)
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("user %s: password_hash required", u.Username)
		}
		key := strings.ToLower(u.Username)
		if _, dup := s.users[key]; dup {
			return nil, fmt.Errorf("user %s: duplicate username", u.Username)
		}
		if u.Role == "" {
			u.Role = "user"
		}
		if u.ID == "" {
			u.ID = u.Username
		}
		s.users[key] = u
	}
	return s, nil
}

// Empty is a store nobody can log in to.
func Empty() *Store {
	return &Store{users: map[string]User{}}
}

func (s *Store) Len() int {
	return len(s.users)
}

// Authenticate checks username and password. Unapproved accounts with a
// correct password get ErrPendingApproval.
func (s *Store) Authenticate(username, password string) (User, error) {
	u, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	if !u.IsApproved() {
		return User{}, ErrPendingApproval
	}
	return u, nil
}

// HashPassword produces a hash suitable for the users file.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
