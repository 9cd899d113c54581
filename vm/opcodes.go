package vm

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// opFunc executes a decoded instruction. args holds the evaluated operands.
type opFunc func(m *Machine, in *Instruction, args []uint16) error

// opcode describes one version variant of an opcode number.
type opcode struct {
	name     string
	kind     OpKind
	number   uint8
	min, max byte // inclusive version range
	store    bool
	branch   bool
	text     bool
	minArgs  int
	exec     opFunc
}

type opKey struct {
	kind   OpKind
	number uint8
}

// opcodeTable maps (kind, number) to its version variants.
var opcodeTable = map[opKey][]*opcode{}

const (
	fStore = 1 << iota
	fBranch
	fText
)

func def(kind OpKind, number uint8, name string, min, max byte, flags int, minArgs int, exec opFunc) {
	op := &opcode{
		name:    name,
		kind:    kind,
		number:  number,
		min:     min,
		max:     max,
		store:   flags&fStore != 0,
		branch:  flags&fBranch != 0,
		text:    flags&fText != 0,
		minArgs: minArgs,
		exec:    exec,
	}
	k := opKey{kind, number}
	opcodeTable[k] = append(opcodeTable[k], op)
}

// lookupOpcode returns the variant valid for version, or nil.
func lookupOpcode(kind OpKind, number uint8, version byte) *opcode {
	for _, op := range opcodeTable[opKey{kind, number}] {
		if version >= op.min && version <= op.max {
			return op
		}
	}
	return nil
}

// anyVariant returns the variant closest to the newest version, used to
// size an instruction whose opcode is not valid for the running version.
func anyVariant(kind OpKind, number uint8) *opcode {
	vs := opcodeTable[opKey{kind, number}]
	if len(vs) == 0 {
		return nil
	}
	return vs[len(vs)-1]
}

// OpcodeInfo is the public description of an opcode variant.
type OpcodeInfo struct {
	Name       string
	Kind       OpKind
	Number     uint8
	MinVersion byte
	MaxVersion byte
	Store      bool
	Branch     bool
	Text       bool
}

// Opcodes lists every opcode variant valid for version.
func Opcodes(version byte) []OpcodeInfo {
	var out []OpcodeInfo
	for _, kind := range []OpKind{Kind0OP, Kind1OP, Kind2OP, KindVAR, KindEXT} {
		for n := 0; n < 256; n++ {
			op := lookupOpcode(kind, uint8(n), version)
			if op == nil {
				continue
			}
			out = append(out, OpcodeInfo{
				Name:       op.name,
				Kind:       op.kind,
				Number:     op.number,
				MinVersion: op.min,
				MaxVersion: op.max,
				Store:      op.store,
				Branch:     op.branch,
				Text:       op.text,
			})
		}
	}
	return out
}

func init() {
	const all, last = 1, 8

	// 2OP
	def(Kind2OP, 0x01, "je", all, last, fBranch, 1, opJe)
	def(Kind2OP, 0x02, "jl", all, last, fBranch, 2, opJl)
	def(Kind2OP, 0x03, "jg", all, last, fBranch, 2, opJg)
	def(Kind2OP, 0x04, "dec_chk", all, last, fBranch, 2, opDecChk)
	def(Kind2OP, 0x05, "inc_chk", all, last, fBranch, 2, opIncChk)
	def(Kind2OP, 0x06, "jin", all, last, fBranch, 2, opJin)
	def(Kind2OP, 0x07, "test", all, last, fBranch, 2, opTest)
	def(Kind2OP, 0x08, "or", all, last, fStore, 2, opOr)
	def(Kind2OP, 0x09, "and", all, last, fStore, 2, opAnd)
	def(Kind2OP, 0x0A, "test_attr", all, last, fBranch, 2, opTestAttr)
	def(Kind2OP, 0x0B, "set_attr", all, last, 0, 2, opSetAttr)
	def(Kind2OP, 0x0C, "clear_attr", all, last, 0, 2, opClearAttr)
	def(Kind2OP, 0x0D, "store", all, last, 0, 2, opStore)
	def(Kind2OP, 0x0E, "insert_obj", all, last, 0, 2, opInsertObj)
	def(Kind2OP, 0x0F, "loadw", all, last, fStore, 2, opLoadw)
	def(Kind2OP, 0x10, "loadb", all, last, fStore, 2, opLoadb)
	def(Kind2OP, 0x11, "get_prop", all, last, fStore, 2, opGetProp)
	def(Kind2OP, 0x12, "get_prop_addr", all, last, fStore, 2, opGetPropAddr)
	def(Kind2OP, 0x13, "get_next_prop", all, last, fStore, 2, opGetNextProp)
	def(Kind2OP, 0x14, "add", all, last, fStore, 2, opAdd)
	def(Kind2OP, 0x15, "sub", all, last, fStore, 2, opSub)
	def(Kind2OP, 0x16, "mul", all, last, fStore, 2, opMul)
	def(Kind2OP, 0x17, "div", all, last, fStore, 2, opDiv)
	def(Kind2OP, 0x18, "mod", all, last, fStore, 2, opMod)
	def(Kind2OP, 0x19, "call_2s", 4, last, fStore, 1, opCall)
	def(Kind2OP, 0x1A, "call_2n", 5, last, 0, 1, opCall)
	def(Kind2OP, 0x1B, "set_colour", 5, last, 0, 2, opNoop)
	def(Kind2OP, 0x1C, "throw", 5, last, 0, 2, opThrow)

	// 1OP
	def(Kind1OP, 0x00, "jz", all, last, fBranch, 1, opJz)
	def(Kind1OP, 0x01, "get_sibling", all, last, fStore|fBranch, 1, opGetSibling)
	def(Kind1OP, 0x02, "get_child", all, last, fStore|fBranch, 1, opGetChild)
	def(Kind1OP, 0x03, "get_parent", all, last, fStore, 1, opGetParent)
	def(Kind1OP, 0x04, "get_prop_len", all, last, fStore, 1, opGetPropLen)
	def(Kind1OP, 0x05, "inc", all, last, 0, 1, opInc)
	def(Kind1OP, 0x06, "dec", all, last, 0, 1, opDec)
	def(Kind1OP, 0x07, "print_addr", all, last, 0, 1, opPrintAddr)
	def(Kind1OP, 0x08, "call_1s", 4, last, fStore, 1, opCall)
	def(Kind1OP, 0x09, "remove_obj", all, last, 0, 1, opRemoveObj)
	def(Kind1OP, 0x0A, "print_obj", all, last, 0, 1, opPrintObj)
	def(Kind1OP, 0x0B, "ret", all, last, 0, 1, opRet)
	def(Kind1OP, 0x0C, "jump", all, last, 0, 1, opJump)
	def(Kind1OP, 0x0D, "print_paddr", all, last, 0, 1, opPrintPaddr)
	def(Kind1OP, 0x0E, "load", all, last, fStore, 1, opLoad)
	def(Kind1OP, 0x0F, "not", all, 4, fStore, 1, opNot)
	def(Kind1OP, 0x0F, "call_1n", 5, last, 0, 1, opCall)

	// 0OP
	def(Kind0OP, 0x00, "rtrue", all, last, 0, 0, opRtrue)
	def(Kind0OP, 0x01, "rfalse", all, last, 0, 0, opRfalse)
	def(Kind0OP, 0x02, "print", all, last, fText, 0, opPrint)
	def(Kind0OP, 0x03, "print_ret", all, last, fText, 0, opPrintRet)
	def(Kind0OP, 0x04, "nop", all, last, 0, 0, opNoop)
	def(Kind0OP, 0x05, "save", all, 3, fBranch, 0, opSave)
	def(Kind0OP, 0x05, "save", 4, 4, fStore, 0, opSave)
	def(Kind0OP, 0x06, "restore", all, 3, fBranch, 0, opRestore)
	def(Kind0OP, 0x06, "restore", 4, 4, fStore, 0, opRestore)
	def(Kind0OP, 0x07, "restart", all, last, 0, 0, opRestart)
	def(Kind0OP, 0x08, "ret_popped", all, last, 0, 0, opRetPopped)
	def(Kind0OP, 0x09, "pop", all, 4, 0, 0, opPop)
	def(Kind0OP, 0x09, "catch", 5, last, fStore, 0, opCatch)
	def(Kind0OP, 0x0A, "quit", all, last, 0, 0, opQuit)
	def(Kind0OP, 0x0B, "new_line", all, last, 0, 0, opNewLine)
	def(Kind0OP, 0x0C, "show_status", all, last, 0, 0, opShowStatus)
	def(Kind0OP, 0x0D, "verify", 3, last, fBranch, 0, opVerify)
	def(Kind0OP, 0x0F, "piracy", 5, last, fBranch, 0, opPiracy)

	// VAR
	def(KindVAR, 0x00, "call", all, 3, fStore, 1, opCall)
	def(KindVAR, 0x00, "call_vs", 4, last, fStore, 1, opCall)
	def(KindVAR, 0x01, "storew", all, last, 0, 3, opStorew)
	def(KindVAR, 0x02, "storeb", all, last, 0, 3, opStoreb)
	def(KindVAR, 0x03, "put_prop", all, last, 0, 3, opPutProp)
	def(KindVAR, 0x04, "sread", all, 4, 0, 1, opRead)
	def(KindVAR, 0x04, "aread", 5, last, fStore, 1, opRead)
	def(KindVAR, 0x05, "print_char", all, last, 0, 1, opPrintChar)
	def(KindVAR, 0x06, "print_num", all, last, 0, 1, opPrintNum)
	def(KindVAR, 0x07, "random", all, last, fStore, 1, opRandom)
	def(KindVAR, 0x08, "push", all, last, 0, 1, opPush)
	def(KindVAR, 0x09, "pull", all, 5, 0, 1, opPull)
	def(KindVAR, 0x09, "pull", 6, 6, fStore, 0, opPull)
	def(KindVAR, 0x09, "pull", 7, last, 0, 1, opPull)
	def(KindVAR, 0x0A, "split_window", 3, last, 0, 1, opNoop)
	def(KindVAR, 0x0B, "set_window", 3, last, 0, 1, opNoop)
	def(KindVAR, 0x0C, "call_vs2", 4, last, fStore, 1, opCall)
	def(KindVAR, 0x0D, "erase_window", 4, last, 0, 1, opNoop)
	def(KindVAR, 0x0E, "erase_line", 4, last, 0, 1, opNoop)
	def(KindVAR, 0x0F, "set_cursor", 4, last, 0, 2, opNoop)
	def(KindVAR, 0x10, "get_cursor", 4, last, 0, 1, opGetCursor)
	def(KindVAR, 0x11, "set_text_style", 4, last, 0, 1, opNoop)
	def(KindVAR, 0x12, "buffer_mode", 4, last, 0, 1, opNoop)
	def(KindVAR, 0x13, "output_stream", 3, last, 0, 1, opOutputStream)
	def(KindVAR, 0x14, "input_stream", 3, last, 0, 1, opNoop)
	def(KindVAR, 0x15, "sound_effect", 3, last, 0, 0, opNoop)
	def(KindVAR, 0x16, "read_char", 4, last, fStore, 0, opReadChar)
	def(KindVAR, 0x17, "scan_table", 4, last, fStore|fBranch, 3, opScanTable)
	def(KindVAR, 0x18, "not", 5, last, fStore, 1, opNot)
	def(KindVAR, 0x19, "call_vn", 5, last, 0, 1, opCall)
	def(KindVAR, 0x1A, "call_vn2", 5, last, 0, 1, opCall)
	def(KindVAR, 0x1B, "tokenise", 5, last, 0, 2, opTokenise)
	def(KindVAR, 0x1C, "encode_text", 5, last, 0, 4, opEncodeText)
	def(KindVAR, 0x1D, "copy_table", 5, last, 0, 3, opCopyTable)
	def(KindVAR, 0x1E, "print_table", 5, last, 0, 2, opPrintTable)
	def(KindVAR, 0x1F, "check_arg_count", 5, last, fBranch, 1, opCheckArgCount)

	// EXT
	def(KindEXT, 0x00, "save", 5, last, fStore, 0, opSave)
	def(KindEXT, 0x01, "restore", 5, last, fStore, 0, opRestore)
	def(KindEXT, 0x02, "log_shift", 5, last, fStore, 2, opLogShift)
	def(KindEXT, 0x03, "art_shift", 5, last, fStore, 2, opArtShift)
	def(KindEXT, 0x04, "set_font", 5, last, fStore, 1, opSetFont)
	def(KindEXT, 0x05, "draw_picture", 6, 6, 0, 1, opNoop)
	def(KindEXT, 0x06, "picture_data", 6, 6, fBranch, 2, opPictureData)
	def(KindEXT, 0x07, "erase_picture", 6, 6, 0, 1, opNoop)
	def(KindEXT, 0x08, "set_margins", 6, 6, 0, 2, opNoop)
	def(KindEXT, 0x09, "save_undo", 5, last, fStore, 0, opSaveUndo)
	def(KindEXT, 0x0A, "restore_undo", 5, last, fStore, 0, opRestoreUndo)
	def(KindEXT, 0x0B, "print_unicode", 5, last, 0, 1, opPrintUnicode)
	def(KindEXT, 0x0C, "check_unicode", 5, last, fStore, 1, opCheckUnicode)
	def(KindEXT, 0x0D, "set_true_colour", 5, last, 0, 2, opNoop)
	def(KindEXT, 0x10, "move_window", 6, 6, 0, 3, opNoop)
	def(KindEXT, 0x11, "window_size", 6, 6, 0, 3, opNoop)
	def(KindEXT, 0x12, "window_style", 6, 6, 0, 2, opNoop)
	def(KindEXT, 0x13, "get_wind_prop", 6, 6, fStore, 2, opStoreZero)
	def(KindEXT, 0x14, "scroll_window", 6, 6, 0, 2, opNoop)
	def(KindEXT, 0x15, "pop_stack", 6, 6, 0, 1, opPopStack)
	def(KindEXT, 0x16, "read_mouse", 6, 6, 0, 1, opNoop)
	def(KindEXT, 0x17, "mouse_window", 6, 6, 0, 1, opNoop)
	def(KindEXT, 0x18, "push_stack", 6, 6, fBranch, 1, opPushStack)
	def(KindEXT, 0x19, "put_wind_prop", 6, 6, 0, 3, opNoop)
	def(KindEXT, 0x1A, "print_form", 6, 6, 0, 1, opNoop)
	def(KindEXT, 0x1B, "make_menu", 6, 6, fBranch, 2, opBranchFalse)
	def(KindEXT, 0x1C, "picture_table", 6, 6, 0, 1, opNoop)
	def(KindEXT, 0x1D, "buffer_screen", 6, 6, fStore, 1, opStoreZero)
}
