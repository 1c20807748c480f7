package pmix

// Version is the server's own handshake version string, compared
// against every connecting client's claimed version (spec section
// 4.3 step 4).
const Version = "2.0.0"
