// Package models holds the data types shared between the engine, the
// backends and the observers.
package models

import "time"

// RemoteFile is what a backend reports for a completed transfer.
type RemoteFile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	FolderID string    `json:"folderId"`
	Size     int64     `json:"size"`
	Path     string    `json:"path,omitempty"`
	Created  time.Time `json:"created,omitempty"`
}

// Folder represents a remote directory
type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// RootFolders represents user's root folders
type RootFolders struct {
	MyJobs    string `json:"myJobs"`
	MyLibrary string `json:"myLibrary"`
}

// APIErrorBody is the structured failure body returned by the drive API.
type APIErrorBody struct {
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}
