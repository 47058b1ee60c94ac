package listing

import (
	"safenfs.io/safenfs"
)

// This file composes safenfs.Encoder/Decoder to give DirectoryInfo
// and DirectoryListing the same bit-exact canonical encoding as the
// rest of the module (§4.5, §3.2).

func (info *DirectoryInfo) marshalTo(acc *safenfs.Encoder) {
	info.Key.MarshalTo(acc)
	acc.String(info.Name)
	acc.Byte(byte(info.AccessLevel))
	if info.Versioned {
		acc.Byte(1)
	} else {
		acc.Byte(0)
	}
	acc.Time(info.Created)
	acc.Time(info.Modified)
	acc.Bytes(info.UserMetadata)
	if info.ParentDirKey != nil {
		acc.Byte(1)
		info.ParentDirKey.MarshalTo(acc)
	} else {
		acc.Byte(0)
	}
}

func (info *DirectoryInfo) unmarshalFrom(c *safenfs.Decoder) {
	info.Key.UnmarshalFrom(c)
	info.Name = c.String()
	info.AccessLevel = safenfs.AccessLevel(c.Byte())
	info.Versioned = c.Byte() == 1
	info.Created = c.Time()
	info.Modified = c.Time()
	info.UserMetadata = c.Bytes()
	if c.Byte() == 1 {
		var key safenfs.DirectoryKey
		key.UnmarshalFrom(c)
		info.ParentDirKey = &key
	} else {
		info.ParentDirKey = nil
	}
}

// Marshal returns the canonical binary encoding of a DirectoryInfo.
func (info *DirectoryInfo) Marshal() []byte {
	acc := &safenfs.Encoder{}
	info.marshalTo(acc)
	return acc.Result()
}

// Unmarshal decodes a DirectoryInfo produced by Marshal.
func (info *DirectoryInfo) Unmarshal(b []byte) error {
	c := safenfs.NewDecoder(b)
	info.unmarshalFrom(c)
	_, err := c.Remainder()
	return err
}

// Marshal returns the canonical binary encoding of a DirectoryListing.
func (l *DirectoryListing) Marshal() []byte {
	acc := &safenfs.Encoder{}
	l.Info.marshalTo(acc)

	acc.Uint64(uint64(len(l.SubDirectories)))
	for i := range l.SubDirectories {
		l.SubDirectories[i].marshalTo(acc)
	}

	acc.Uint64(uint64(len(l.Files)))
	for i := range l.Files {
		acc.Bytes(l.Files[i].Marshal())
	}

	return acc.Result()
}

// Unmarshal decodes a DirectoryListing produced by Marshal.
func (l *DirectoryListing) Unmarshal(b []byte) error {
	c := safenfs.NewDecoder(b)
	l.Info.unmarshalFrom(c)

	nSub := c.Uint64()
	l.SubDirectories = make([]DirectoryInfo, nSub)
	for i := range l.SubDirectories {
		l.SubDirectories[i].unmarshalFrom(c)
	}

	nFiles := c.Uint64()
	l.Files = make([]safenfs.File, nFiles)
	for i := range l.Files {
		fileBytes := c.Bytes()
		if c.Err() != nil {
			break
		}
		if err := l.Files[i].Unmarshal(fileBytes); err != nil {
			return err
		}
	}

	_, err := c.Remainder()
	return err
}
