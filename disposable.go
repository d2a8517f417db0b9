package keel

// Disposable is implemented by services and container entries that hold
// resources. Application.Close disposes them in reverse creation order.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	Close() error
}
