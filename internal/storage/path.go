package storage

import (
	"path"
	"strings"

	"github.com/prn-tf/mvstories/internal/domain"
)

// Storage key layout:
//
//	{userId}/{pluralType}/{objectId}/metadata.json
//	{userId}/{pluralType}/{objectId}/data{ext}
//	{userId}/{pluralType}/{objectId}/session.mvstory   (story companion session)
//
// A flat key listing decomposes back into (userId, pluralType, objectId) by
// splitting on "/" and taking the first three segments.

// File names and extensions.
const (
	MetadataFile         = "metadata.json"
	DataFilePrefix       = "data"
	CompanionSessionFile = "session.mvstory"

	ExtSession = ".mvstory"
	ExtMVSJ    = ".mvsj"
	ExtMVSX    = ".mvsx"
)

// Content types recorded with stored objects.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
	ContentTypeZip     = "application/zip"
)

// PluralType maps an object type to its path segment.
//
// Example:
//
//	session -> "sessions", story -> "stories", other -> type + "s"
func PluralType(t domain.ObjectType) string {
	switch t {
	case domain.TypeSession:
		return "sessions"
	case domain.TypeStory:
		return "stories"
	default:
		return string(t) + "s"
	}
}

// ObjectPath returns the directory of a logical object: "{userId}/{plural}/{objectId}".
func ObjectPath(userID string, t domain.ObjectType, objectID string) string {
	return userID + "/" + PluralType(t) + "/" + objectID
}

// MetadataKey returns the metadata key of an object directory.
func MetadataKey(objectPath string) string {
	return objectPath + "/" + MetadataFile
}

// DataKey returns the primary content key of an object directory.
func DataKey(objectPath, ext string) string {
	return objectPath + "/" + DataFilePrefix + ext
}

// CompanionSessionKey returns the key of a story's companion session snapshot.
func CompanionSessionKey(objectPath string) string {
	return objectPath + "/" + CompanionSessionFile
}

// UserPrefix returns the namespace prefix of a user.
func UserPrefix(userID string) string {
	return userID + "/"
}

// TypePrefix returns the prefix holding all objects of a type for a user.
func TypePrefix(userID string, t domain.ObjectType) string {
	return userID + "/" + PluralType(t) + "/"
}

// AllowedExtensions returns the upload extensions accepted for a type.
func AllowedExtensions(t domain.ObjectType) []string {
	switch t {
	case domain.TypeSession:
		return []string{ExtSession}
	case domain.TypeStory:
		return []string{ExtMVSJ, ExtMVSX}
	default:
		return nil
	}
}

// HasAllowedExtension reports whether filename ends with one of the type's extensions.
func HasAllowedExtension(t domain.ObjectType, filename string) bool {
	for _, ext := range AllowedExtensions(t) {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// DataExtension selects the content extension for a new object.
// Sessions always use ".mvstory"; stories keep ".mvsj" or ".mvsx" from the
// uploaded filename and default to ".mvsj".
func DataExtension(t domain.ObjectType, filename string) string {
	if t == domain.TypeSession {
		return ExtSession
	}
	switch path.Ext(filename) {
	case ExtMVSX:
		return ExtMVSX
	default:
		return ExtMVSJ
	}
}

// ContentType returns the MIME type stored with a content object.
func ContentType(t domain.ObjectType, ext string) string {
	if t == domain.TypeSession || ext == ExtSession {
		return ContentTypeMsgpack
	}
	if ext == ExtMVSX {
		return ContentTypeZip
	}
	return ContentTypeJSON
}

// ObjectDirFromKey reconstructs the object directory from any key inside it.
//
// Example:
//
//	"u1/stories/ab12cd34/data.mvsj" -> "u1/stories/ab12cd34", true
func ObjectDirFromKey(key string) (string, bool) {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) < 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	return strings.Join(parts[:3], "/"), true
}

// ObjectRef is a decomposed object directory.
type ObjectRef struct {
	UserID   string
	Plural   string
	ObjectID string
}

// Path returns the object directory.
func (r ObjectRef) Path() string {
	return r.UserID + "/" + r.Plural + "/" + r.ObjectID
}

// ParseObjectKey splits a key into its owning object directory parts.
func ParseObjectKey(key string) (ObjectRef, bool) {
	dir, ok := ObjectDirFromKey(key)
	if !ok {
		return ObjectRef{}, false
	}
	parts := strings.Split(dir, "/")
	return ObjectRef{UserID: parts[0], Plural: parts[1], ObjectID: parts[2]}, true
}

// StoryFormat returns "mvsj" or "mvsx" for a story data extension.
func StoryFormat(ext string) string {
	return strings.TrimPrefix(ext, ".")
}
