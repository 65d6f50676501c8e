package models

import "time"

// Signature identifies who authored or committed a change, and when.
type Signature struct {
	Name  string    `json:"Name"`
	Email string    `json:"Email"`
	Date  time.Time `json:"Date"`
}

// Commit is a single revision of a repository.
type Commit struct {
	ID        string     `json:"ID"`
	Author    Signature  `json:"Author"`
	Committer *Signature `json:"Committer,omitempty"`
	Message   string     `json:"Message"`
	Parents   []string   `json:"Parents,omitempty"`
}

// Branch is a named, movable reference.
type Branch struct {
	Name   string  `json:"Name"`
	Head   string  `json:"Head"`
	Commit *Commit `json:"Commit,omitempty"`
}

// Tag is a named, fixed reference.
type Tag struct {
	Name     string `json:"Name"`
	CommitID string `json:"CommitID"`
}

// Inventory summarises the languages present in a tree at one commit.
type Inventory struct {
	Languages []*Lang `json:"Languages,omitempty"`
}

// Lang is one inventory entry.
type Lang struct {
	Name       string `json:"Name"`
	Type       string `json:"Type,omitempty"`
	TotalBytes uint64 `json:"TotalBytes"`
}
