// Package datapath resolves where installs and game data live and maintains
// the shared data pool.
//
// Layout under the base directory:
//
//	<base>/versions/<version>/        install directories
//	<base>/downloads/<version>/       transient package archives
//	<base>/data/<version>/            default per-version data
//	<base>/data/shared/<subtree>/     shared pool, linked into every data dir
//
// A custom data root replaces <base>/data for per-version data only; the
// shared pool always stays under <base>/data/shared so links created before a
// root change keep resolving.
package datapath
