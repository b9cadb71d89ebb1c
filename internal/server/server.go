// Package server exposes type resolution over JSON-RPC 2.0 on stdio, using
// the same framing as language servers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shopware/php-infer/internal/indexer"
	"github.com/shopware/php-infer/internal/infer"
	"github.com/shopware/php-infer/internal/php"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("phpinfer.server")

// File change kinds of workspace/didChangeWatchedFiles.
const (
	fileCreated = 1
	fileChanged = 2
	fileDeleted = 3
)

// ResolveParams is the request of phpinfer/resolve and phpinfer/hasReferences.
type ResolveParams struct {
	// Scope is the class the expression is evaluated in, optionally followed
	// by ::method.
	Scope string `json:"scope,omitempty"`
	infer.Query
}

// ResolveResult is the answer to phpinfer/resolve.
type ResolveResult struct {
	Type string          `json:"type"`
	Tree json.RawMessage `json:"tree"`
}

// Server answers resolution requests against a definition index.
type Server struct {
	rootPath string
	conn     *jsonrpc2.Conn
	index    *php.Index
	resolver *infer.Resolver
	classes  infer.ClassAnalyzer
	// FileScanner is optional. Without it indexing requests are no-ops.
	FileScanner *indexer.FileScanner

	indexMu sync.Mutex
}

// NewServer creates a server. classes looks up scope classes that are not
// in the index yet and may be nil.
func NewServer(index *php.Index, resolver *infer.Resolver, classes infer.ClassAnalyzer, fileScanner *indexer.FileScanner) *Server {
	return &Server{
		index:       index,
		resolver:    resolver,
		classes:     classes,
		FileScanner: fileScanner,
	}
}

// indexAll updates the index of the workspace.
// If forceReindex is true, all files are indexed again.
func (s *Server) indexAll(ctx context.Context, forceReindex bool) error {
	if s.FileScanner == nil {
		return nil
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	startTime := time.Now()

	if s.conn != nil {
		if err := s.conn.Notify(ctx, "phpinfer/indexingStarted", map[string]interface{}{
			"message": "Indexing started",
		}); err != nil {
			return err
		}
	}

	if forceReindex {
		if err := s.FileScanner.ClearHashes(); err != nil {
			return err
		}
	}

	if err := s.FileScanner.IndexAll(ctx); err != nil {
		return err
	}

	elapsedTime := time.Since(startTime)

	if s.conn != nil {
		if err := s.conn.Notify(ctx, "phpinfer/indexingCompleted", map[string]interface{}{
			"message":       "Indexing completed",
			"timeInSeconds": elapsedTime.Seconds(),
			"classes":       len(s.index.ClassNames()),
		}); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the file scanner and its indexers.
func (s *Server) Close() error {
	if s.FileScanner == nil {
		return nil
	}
	return s.FileScanner.Close()
}

// Start serves requests until the connection is closed.
func (s *Server) Start(in io.Reader, out io.Writer) error {
	stream := jsonrpc2.NewBufferedStream(rwc{in, out}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(s.handle))
	s.conn = conn

	<-conn.DisconnectNotify()
	return nil
}

// rwc combines a reader and writer into a single ReadWriteCloser
type rwc struct {
	io.Reader
	io.Writer
}

func (rwc) Close() error {
	return nil
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	if req.Method == "exit" {
		log.Info("received exit notification, exiting")
		if err := conn.Close(); err != nil {
			log.Errorf("error closing connection: %s", err)
		}
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		var params struct {
			RootPath string `json:"rootPath"`
			RootURI  string `json:"rootUri"`
		}
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.rootPath = params.RootPath
		if s.rootPath == "" {
			s.rootPath = uriToPath(params.RootURI)
		}
		return map[string]interface{}{
			"serverInfo": map[string]interface{}{"name": "php-infer"},
			"capabilities": map[string]interface{}{
				"resolveProvider": true,
				"queryKinds": []string{
					infer.QueryMethod, infer.QueryStatic, infer.QueryNew,
					infer.QueryProperty, infer.QueryCall, infer.QueryType,
				},
			},
		}, nil

	case "initialized":
		go func() {
			if err := s.indexAll(context.Background(), false); err != nil {
				log.Errorf("error indexing: %s", err)
			}
		}()
		return nil, nil

	case "phpinfer/resolve":
		var params ResolveParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.resolve(&params)

	case "phpinfer/hasReferences":
		var params ResolveParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		t, err := params.Type(s.scope(params.Scope))
		if err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
		}
		return infer.HasResolvableReferences(t), nil

	case "phpinfer/classes":
		return s.index.ClassNames(), nil

	case "phpinfer/forceReindex":
		go func() {
			if err := s.indexAll(context.Background(), true); err != nil {
				log.Errorf("error force reindexing: %s", err)
			}
		}()
		return map[string]interface{}{
			"message": "Force reindexing started",
		}, nil

	case "shutdown":
		if err := s.Close(); err != nil {
			log.Errorf("error closing indexers: %s", err)
		}
		log.Info("received shutdown request, waiting for exit notification")
		return nil, nil

	case "workspace/didChangeWatchedFiles":
		var params struct {
			Changes []struct {
				URI  string `json:"uri"`
				Type int    `json:"type"`
			} `json:"changes"`
		}
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		if s.FileScanner == nil {
			return nil, nil
		}

		var changed, deleted []string
		for _, change := range params.Changes {
			switch change.Type {
			case fileCreated, fileChanged:
				changed = append(changed, uriToPath(change.URI))
			case fileDeleted:
				deleted = append(deleted, uriToPath(change.URI))
			}
		}

		if len(changed) > 0 {
			if err := s.FileScanner.IndexFiles(ctx, changed); err != nil {
				log.Errorf("error indexing changed files: %s", err)
			}
		}
		if len(deleted) > 0 {
			if err := s.FileScanner.RemoveFiles(ctx, deleted); err != nil {
				log.Errorf("error removing deleted files: %s", err)
			}
		}
		return nil, nil

	default:
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "Method not implemented: " + req.Method}
	}
}

func (s *Server) resolve(params *ResolveParams) (*ResolveResult, error) {
	scope := s.scope(params.Scope)

	t, err := params.Type(scope)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}

	resolved, err := s.resolver.Resolve(scope, t)
	if err != nil {
		var logicErr *infer.LogicError
		if errors.As(err, &logicErr) {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: logicErr.Error()}
		}
		return nil, err
	}

	tree, err := php.TypeJSON(resolved)
	if err != nil {
		return nil, err
	}
	return &ResolveResult{Type: resolved.String(), Tree: tree}, nil
}

// scope builds the scope for "Class" or "Class::method". Unknown classes
// give an empty scope.
func (s *Server) scope(name string) *infer.Scope {
	className, method, _ := strings.Cut(name, "::")
	if className == "" {
		return infer.NewScope(nil, nil)
	}

	class := s.index.GetClass(className)
	if class == nil && s.classes != nil {
		class = s.classes.Analyze(className)
	}
	if class == nil {
		log.Debugf("scope class %s not found", className)
		return infer.NewScope(nil, nil)
	}

	var function *php.FunctionLikeDefinition
	if method != "" {
		function = class.GetMethod(method, s.index.GetClass)
	}
	return infer.NewScope(class, function)
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return nil
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeParseError, Message: err.Error()}
	}
	return nil
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
