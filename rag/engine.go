package rag

import (
	"github.com/esgrag/esgrag/rag/interfaces"
	"github.com/esgrag/esgrag/rag/types"
)

// Engine is an alias for interfaces.Engine
type Engine = interfaces.Engine

// Result is an alias for types.Result
type Result = types.Result
