package runner

var JoinGroup = joinGroup

// JoinNewChain runs the parent side of starting pid as the first process
// of a new chain.
func JoinNewChain(r *Runner, pid int) (pgid, jid int, err error) {
	var p pipeline
	err = r.join(&p, pid)
	return p.pgid, p.jid, err
}
