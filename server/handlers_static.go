package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// HandleIndex serves the landing page.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.publicDir, "index.html"))
}

// HandleChatPage serves the chat page.
func (h *Handlers) HandleChatPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.publicDir, "chat", "chat.html"))
}

// staticHandler serves the client bundle. Directories are only served through
// their index.html; listings are never generated.
func (h *Handlers) staticHandler() http.Handler {
	return http.FileServer(noListingFS{http.Dir(h.publicDir)})
}

type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		idx, err := n.fs.Open(path.Join(name, "index.html"))
		if err != nil {
			_ = f.Close()
			return nil, fs.ErrNotExist
		}
		_ = idx.Close()
	}
	return f, nil
}

// publicDirReady reports whether the landing page exists.
func (h *Handlers) publicDirReady() error {
	st, err := os.Stat(filepath.Join(h.publicDir, "index.html"))
	if err != nil {
		return err
	}
	if st.IsDir() {
		return errors.New("index.html is a directory")
	}
	return nil
}
